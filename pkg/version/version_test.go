package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/chunkmap/pkg/version"
)

func TestString(t *testing.T) {
	version.InitBinaryVersion()

	out := version.String()

	assert.Contains(t, out, "chunkmap ")
	assert.Contains(t, out, "commit: "+version.Commit)
	assert.Contains(t, out, "built: "+version.Date)
}
