//go:build !windows

package process

func sameName(got, want string) bool { return got == want }
