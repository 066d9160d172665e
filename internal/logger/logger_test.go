package logger

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.uber.org/zap"
)

func TestInitWritesRotatedFile(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	l, err := Init("optica-test", dir, false)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	l.Info("hello", zap.String("k", "v"))
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "optica-test.log"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Contains, `"msg":"hello"`)
	c.Assert(zap.L(), qt.Equals, l)
}
