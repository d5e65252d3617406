package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusScheduled, StatusLive))
	assert.True(t, CanTransition(StatusScheduled, StatusCancelled))
	assert.True(t, CanTransition(StatusLive, StatusEnded))
	assert.True(t, CanTransition(StatusLive, StatusCancelled))

	assert.False(t, CanTransition(StatusScheduled, StatusEnded))
	assert.False(t, CanTransition(StatusLive, StatusScheduled))
	assert.False(t, CanTransition(StatusEnded, StatusLive))
	assert.False(t, CanTransition(StatusCancelled, StatusScheduled))
	assert.False(t, CanTransition(StatusLive, StatusLive))
}

func TestIsJoinable(t *testing.T) {
	for status, joinable := range map[WebinarStatus]bool{
		StatusScheduled: true,
		StatusLive:      true,
		StatusEnded:     false,
		StatusCancelled: false,
	} {
		w := Webinar{Status: status}
		assert.Equal(t, joinable, w.IsJoinable(), "status %s", status)
	}
}

func TestValidAccessType(t *testing.T) {
	assert.True(t, ValidAccessType("open"))
	assert.True(t, ValidAccessType("members_only"))
	assert.True(t, ValidAccessType("password"))
	assert.False(t, ValidAccessType("invite"))
	assert.False(t, ValidAccessType(""))
}
