package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration_AsDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, Duration("5s").AsDuration())
	assert.Equal(t, 200*time.Millisecond, Duration("200ms").AsDuration())
	assert.Equal(t, time.Duration(0), Duration("").AsDuration())
	assert.Equal(t, time.Duration(0), Duration("bogus").AsDuration())
}
