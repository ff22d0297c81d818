//go:build !windows

package filesystem

import "os"

// osReplace POSIX 下 rename 即原子替换。
func osReplace(from, to string) error {
	return os.Rename(from, to)
}

// syncDir 同步父目录元数据，失败可忽略。
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
