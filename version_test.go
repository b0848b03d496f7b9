package txengine

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintVersion(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	var buf bytes.Buffer
	PrintVersion(&buf)

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Version:      "+Version, lines[0])
	assert.Equal(t, "Git revision: "+GitRev, lines[1])
	assert.Equal(t, "Go version:   "+runtime.Version(), lines[3])
	assert.Equal(t, "OS/Arch:      "+runtime.GOOS+"/"+runtime.GOARCH, lines[5])
}
