package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name          string
		localChanged  bool
		localRemoved  bool
		remoteChanged bool
		remoteRemoved bool
		want          Resolution
	}{
		{
			name: "nothing changed",
			want: ResolutionNone,
		},
		{
			name:         "local edit only",
			localChanged: true,
			want:         ResolutionPushLocal,
		},
		{
			name:          "remote edit only",
			remoteChanged: true,
			want:          ResolutionApplyRemote,
		},
		{
			name:          "both edited, local wins this pass",
			localChanged:  true,
			remoteChanged: true,
			want:          ResolutionPushLocal,
		},
		{
			name:         "local removal",
			localRemoved: true,
			want:         ResolutionRemoveRemote,
		},
		{
			name:          "local removal beats remote edit",
			localRemoved:  true,
			remoteChanged: true,
			want:          ResolutionRemoveRemote,
		},
		{
			name:          "remote removal of clean node",
			remoteRemoved: true,
			want:          ResolutionRemoveLocal,
		},
		{
			name:          "remote removal of locally edited node",
			localChanged:  true,
			remoteRemoved: true,
			want:          ResolutionRecreateRemote,
		},
		{
			name:          "removed on both sides",
			localRemoved:  true,
			remoteRemoved: true,
			want:          ResolutionUnmap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.localChanged, tt.localRemoved, tt.remoteChanged, tt.remoteRemoved)
			assert.Equal(t, tt.want, got)
		})
	}
}
