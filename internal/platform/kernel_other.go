//go:build !linux && !darwin

package platform

func kernelRelease() string {
	return ""
}
