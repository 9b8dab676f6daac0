//go:build windows

package preflight

// checkFileDescriptors is a no-op on Windows, which has no ulimit.
func checkFileDescriptors(processes int) Check {
	return Check{
		Name:    "file_descriptors",
		Passed:  true,
		Warning: true,
		Message: "not applicable on windows",
	}
}
