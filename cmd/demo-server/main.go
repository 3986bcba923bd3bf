package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"progresskit/api/httpapi"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/leaderboard"
	"progresskit/progression"
	"progresskit/realtime"
)

// demoCatalog seeds a small achievement set for a Kamëntsá beginner course.
func demoCatalog() (engine.Catalog, error) {
	achievements := []core.AchievementDefinition{
		{
			ID:       "first_steps",
			Name:     "Primeros Pasos",
			Category: "lessons",
			Tier:     core.TierBronze,
			Requirements: []core.Requirement{
				{Type: core.ReqLessonsCompleted, Target: 5, Description: "Complete 5 lessons"},
			},
			PointsReward: 25,
			Badge:        &core.BadgeTemplate{Name: "First Steps"},
		},
		{
			ID:       "dedicated_learner",
			Name:     "Aprendiz Dedicado",
			Category: "lessons",
			Tier:     core.TierSilver,
			Requirements: []core.Requirement{
				{Type: core.ReqLessonsCompleted, Target: 25, Description: "Complete 25 lessons"},
				{Type: core.ReqLearningStreak, Target: 7, Description: "Keep a 7-day streak"},
			},
			PointsReward: 100,
		},
		{
			ID:       "culture_keeper",
			Name:     "Guardián de la Cultura",
			Category: "culture",
			Tier:     core.TierGold,
			Requirements: []core.Requirement{
				{Type: core.ReqCulturalContributions, Target: 10, Description: "Contribute 10 cultural notes"},
			},
			PointsReward: 250,
			Badge:        &core.BadgeTemplate{Name: "Culture Keeper", Tier: core.TierGold},
		},
	}
	badges := []core.BadgeDefinition{
		{
			ID:   "fifty_points",
			Name: "Cincuenta Puntos",
			Tier: core.TierBronze,
			Requirements: core.BadgeRequirements{
				Points: 50,
			},
		},
	}
	return engine.NewStaticCatalog(achievements, badges)
}

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	catalog, err := demoCatalog()
	if err != nil {
		slog.Error("invalid demo catalog", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub()
	svc := progression.New(
		progression.WithCatalog(catalog),
		progression.WithRealtime(hub),
		progression.WithDispatchMode(engine.DispatchAsync),
	)

	board := leaderboard.NewSkipList()
	svc.Subscribe(core.EventPointsAdded, func(ctx context.Context, e core.Event) {
		board.Update(e.UserID, e.Total)
	})
	ranker := leaderboard.NewRanker(svc.Storage(), nil)

	handler := httpapi.NewMux(svc, hub, ranker, board, httpapi.Options{})

	slog.Info("starting demo server on :8080")

	if err := http.ListenAndServe(":8080", handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}
