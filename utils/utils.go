package utils

import (
	"bytes"
	"crypto/rand"
	"log"
	"math"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

// ContentDir returns the directory the security content is downloaded to
// before the installation starts.
func ContentDir() string {
	return LookupEnv("OSCAP_ADDON_CONTENT_DIR", "/tmp/openscap_data")
}

// TargetContentDir returns the directory the content is installed to on the
// target system.
func TargetContentDir() string {
	return LookupEnv("OSCAP_ADDON_TARGET_DIR", "/root/openscap_data")
}

func LookupEnv(key, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultValue
}

func EnsureDirExists(dirPath string) error {
	if dirPath == "" {
		return nil
	}
	if err := os.MkdirAll(dirPath, os.ModePerm); err != nil {
		return xerrors.Errorf("failed to create %s: %w", dirPath, err)
	}
	return nil
}

func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}

func IsCommandAvailable(name string) bool {
	cmd := exec.Command(name, "--help")
	if err := cmd.Run(); err != nil {
		return false
	}
	return true
}

func Exec(command string, args []string) (string, error) {
	cmd := exec.Command(command, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	if err := cmd.Run(); err != nil {
		log.Println(stderrBuf.String())
		return "", xerrors.Errorf("failed to exec: %w", err)
	}
	return stdoutBuf.String(), nil
}

func RandInt() int {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	return int(seed.Int64())
}

// UniversalCopy copies the files or directories matched by the src glob to
// dst, following the same rules as the standard cp utility.
func UniversalCopy(src, dst string) error {
	sources := []string{src}
	if strings.ContainsAny(src, "*?[") {
		matches, err := filepath.Glob(src)
		if err != nil {
			return xerrors.Errorf("invalid glob %s: %w", src, err)
		}
		sources = matches
	}

	for _, item := range sources {
		info, err := os.Stat(item)
		if err != nil {
			return xerrors.Errorf("failed to stat %s: %w", item, err)
		}
		if info.IsDir() {
			target := dst
			if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() {
				target = filepath.Join(dst, filepath.Base(strings.TrimRight(item, "/")))
			}
			if err := copyTree(item, target); err != nil {
				return err
			}
		} else {
			target := dst
			if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() {
				target = filepath.Join(dst, filepath.Base(item))
			}
			if err := CopyFile(item, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func CopyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return xerrors.Errorf("failed to read %s: %w", src, err)
	}
	if err := EnsureDirExists(filepath.Dir(dst)); err != nil {
		return err
	}
	if err := os.WriteFile(dst, b, 0644); err != nil {
		return xerrors.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return EnsureDirExists(target)
		}
		return CopyFile(path, target)
	})
}
