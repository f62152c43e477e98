package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInit_Level(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Init("test", "prod", "debug")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Init("test", "prod", "bogus")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Init("test", "dev", "")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
