package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the required descriptor limit. The file watcher
// holds one descriptor per watched directory plus the sqlite and vector
// index files per scope.
const MinFileDescriptors = 1024

// CheckFileDescriptors verifies the process descriptor limit.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 4096' to raise the limit"
		return result
	}

	result.Status = StatusPass
	return result
}
