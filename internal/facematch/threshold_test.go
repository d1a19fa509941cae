package facematch

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/facesearch/internal/database/mock"
	"github.com/kozaktomas/facesearch/internal/faceerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestThresholdPolicy_GetDefault(t *testing.T) {
	p := NewThresholdPolicy(mock.NewMockSettingsStore(), testThresholds)
	ctx := context.Background()

	v, err := p.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 75.0, v)

	v, err = p.Get(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 75.0, v)
	assert.Equal(t, Bounds{Min: 70, Max: 90}, p.Bounds())
}

func TestThresholdPolicy_SetAndGet(t *testing.T) {
	p := NewThresholdPolicy(mock.NewMockSettingsStore(), testThresholds)
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, "alice", 82.5))
	v, err := p.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 82.5, v)

	other, err := p.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 75.0, other)
}

func TestThresholdPolicy_SetBounds(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr error
	}{
		{"lower edge", 70, nil},
		{"upper edge", 90, nil},
		{"inside", 80, nil},
		{"below band", 69.99, faceerr.ErrOutOfRange},
		{"above band", 90.01, faceerr.ErrOutOfRange},
		{"negative", -1, faceerr.ErrOutOfRange},
		{"above hard range", 150, faceerr.ErrOutOfRange},
		{"nan", math.NaN(), faceerr.ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := mock.NewMockSettingsStore()
			p := NewThresholdPolicy(set, testThresholds)
			err := p.Set(context.Background(), "alice", tt.value)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				_, ok, _ := set.GetThreshold(context.Background(), "alice")
				assert.False(t, ok, "rejected value must not be stored")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestThresholdPolicy_SetRequiresUser(t *testing.T) {
	p := NewThresholdPolicy(mock.NewMockSettingsStore(), testThresholds)
	require.ErrorIs(t, p.Set(context.Background(), "", 80), faceerr.ErrInvalidArgument)
}

func TestThresholdPolicy_StoreErrors(t *testing.T) {
	set := mock.NewMockSettingsStore()
	set.GetError = errors.New("db down")
	set.SetError = errors.New("db down")
	p := NewThresholdPolicy(set, testThresholds)

	_, err := p.Get(context.Background(), "alice")
	require.ErrorContains(t, err, "db down")
	require.ErrorContains(t, p.Set(context.Background(), "alice", 80), "db down")
}

func TestThresholdPolicy_Resolve(t *testing.T) {
	set := mock.NewMockSettingsStore()
	p := NewThresholdPolicy(set, testThresholds)
	ctx := context.Background()
	require.NoError(t, p.Set(ctx, "alice", 88))

	tests := []struct {
		name     string
		user     string
		explicit *float64
		want     float64
		wantErr  error
	}{
		{"explicit wins over stored", "alice", ptr(60), 60, nil},
		{"explicit zero", "alice", ptr(0), 0, nil},
		{"explicit hundred", "", ptr(100), 100, nil},
		{"stored", "alice", nil, 88, nil},
		{"default", "bob", nil, 75, nil},
		{"anonymous default", "", nil, 75, nil},
		{"explicit above hard range", "alice", ptr(100.5), 0, faceerr.ErrOutOfRange},
		{"explicit below hard range", "alice", ptr(-0.5), 0, faceerr.ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Resolve(ctx, tt.user, tt.explicit)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{Min: 70, Max: 90}
	assert.True(t, b.Contains(70))
	assert.True(t, b.Contains(90))
	assert.False(t, b.Contains(math.NaN()))
	assert.True(t, HardBounds.Contains(0))
	assert.False(t, HardBounds.Contains(math.Inf(1)))
}
