package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/ingest"
	"fvm/tracking"
)

type collectingObserver struct {
	fixes chan db.LocationPoint
}

func (o *collectingObserver) OnFix(pt db.LocationPoint) {
	o.fixes <- pt
}

func TestSamplerDropsLowAccuracyFixes(t *testing.T) {
	source := ingest.NewPushSource(8)
	sampler := tracking.NewSampler(source, 50, zap.NewNop())

	obs := &collectingObserver{fixes: make(chan db.LocationPoint, 8)}
	sampler.Observe(obs)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sampler.Run(context.Background())
	}()

	good := db.LocationPoint{Latitude: 25.0330, Longitude: 121.5654, HorizontalAccuracy: 10}
	bad := db.LocationPoint{Latitude: 25.0331, Longitude: 121.5654, HorizontalAccuracy: 80}
	boundary := db.LocationPoint{Latitude: 25.0332, Longitude: 121.5654, HorizontalAccuracy: 50}

	require.NoError(t, source.Offer(good))
	require.NoError(t, source.Offer(bad))
	require.NoError(t, source.Offer(boundary))

	first := <-obs.fixes
	assert.Equal(t, good.Latitude, first.Latitude)

	// the 80 m fix is dropped, accuracy exactly at the bound passes
	second := <-obs.fixes
	assert.Equal(t, boundary.Latitude, second.Latitude)

	require.NoError(t, source.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop after source close")
	}
	assert.Empty(t, obs.fixes)
}

func TestSamplerStopsOnContextCancel(t *testing.T) {
	source := ingest.NewPushSource(1)
	sampler := tracking.NewSampler(source, 50, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sampler.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop after context cancel")
	}
}

func TestSamplerForwardsModeToSource(t *testing.T) {
	source := ingest.NewPushSource(1)
	sampler := tracking.NewSampler(source, 50, zap.NewNop())

	sampler.SetMode(ingest.ModeHighAccuracy)
	assert.Equal(t, ingest.ModeHighAccuracy, source.Mode())
}
