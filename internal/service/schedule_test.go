package service_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ComplyOps/Gatherer/internal/model"
	"github.com/ComplyOps/Gatherer/internal/service"

	"github.com/stretchr/testify/require"
)

func TestScheduleRuns(t *testing.T) {
	t.Parallel()
	requireSh(t)

	cfg := workspace(t, map[string]string{
		"probe": `echo '{}' > "$3/probe.json"`,
	})
	cfg.Service = model.Service{
		Mode:     model.ServiceModeTimer,
		Schedule: &model.TimerSchedule{Every: 20 * time.Millisecond},
	}

	collector, err := service.NewCollector(t.Context(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { collector.Close(t.Context()) })

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, service.Schedule(ctx, collector, cfg.Service))

	// at least one run fired and left its evidence directory behind
	entries, err := os.ReadDir(cfg.EvidenceRoot)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestScheduleRejects(t *testing.T) {
	t.Parallel()
	requireSh(t)

	cfg := workspace(t, map[string]string{"probe": `exit 0`})
	collector, err := service.NewCollector(t.Context(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { collector.Close(t.Context()) })

	cases := []struct {
		scenario string
		svc      model.Service
	}{
		{
			scenario: "manual mode",
			svc:      model.Service{Mode: model.ServiceModeManual},
		},
		{
			scenario: "timer without schedule",
			svc:      model.Service{Mode: model.ServiceModeTimer},
		},
		{
			scenario: "empty schedule",
			svc: model.Service{
				Mode:     model.ServiceModeTimer,
				Schedule: &model.TimerSchedule{},
			},
		},
		{
			scenario: "malformed cron",
			svc: model.Service{
				Mode:     model.ServiceModeTimer,
				Schedule: &model.TimerSchedule{Cron: "whenever"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			require.Error(t, service.Schedule(t.Context(), collector, tc.svc))
		})
	}
}
