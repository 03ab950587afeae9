package sol

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/bse"
	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/store"
)

// Job names, used as the job_name column and as the overlap-guard key.
const (
	JobDailyBSERecalculation   = "daily_bse_recalculation"
	JobWeeklyChallengesReset   = "weekly_challenges_and_reset"
	JobHourlyFlaggedDetection  = "hourly_flagged_user_detection"
)

// Runner groups the stores and engines every SOL job needs.
type Runner struct {
	users        *store.UserStore
	events       *store.EventStore
	flags        *store.RiskFlagStore
	anomalies    *store.AnomalyStore
	leaderboard  *store.LeaderboardStore
	challenges   *store.ChallengeStore
	jobLogs      *store.JobLogStore
	alerts       *store.AlertStore
	audit        *store.AuditStore
	bseEngine    *bse.Engine
	cfg          configs.SOLConfig
	templates    []ChallengeTemplate
}

func NewRunner(
	users *store.UserStore,
	events *store.EventStore,
	flags *store.RiskFlagStore,
	anomalies *store.AnomalyStore,
	leaderboard *store.LeaderboardStore,
	challenges *store.ChallengeStore,
	jobLogs *store.JobLogStore,
	alerts *store.AlertStore,
	audit *store.AuditStore,
	bseEngine *bse.Engine,
	cfg configs.SOLConfig,
	templateYAML []byte,
) (*Runner, error) {
	templates, err := LoadTemplates(templateYAML)
	if err != nil {
		return nil, err
	}
	return &Runner{
		users: users, events: events, flags: flags, anomalies: anomalies,
		leaderboard: leaderboard, challenges: challenges, jobLogs: jobLogs,
		alerts: alerts, audit: audit, bseEngine: bseEngine, cfg: cfg, templates: templates,
	}, nil
}

// RunDailyBSERecalculation implements §4.3's daily_bse_recalculation: score
// every user, rebuild the top-100 leaderboard, prune old archive rows.
func (r *Runner) RunDailyBSERecalculation(ctx context.Context) {
	now := time.Now().UTC()
	var failed, total int

	const pageSize = 500
	offset := 0
	var results []scoredUser

	for {
		users, err := r.users.ListAll(ctx, offset, pageSize)
		if err != nil {
			r.logFailure(ctx, JobDailyBSERecalculation, now, err)
			return
		}
		if len(users) == 0 {
			break
		}
		offset += pageSize

		for _, u := range users {
			total++
			userCtx := models.UserContext{
				AccountAgeDays: u.AccountAgeDays(now),
				CurrentScore:   u.BehaviorScore,
				IsVerified:     u.IsVerified,
			}
			recent, err := r.events.RecentForUser(ctx, u.ID, now.Add(-24*time.Hour), now, 200)
			if err == nil {
				userCtx.RecentActivity = recent
			}

			syntheticEvent := models.Event{UserID: u.ID, EventType: "", Timestamp: now}
			result := r.bseEngine.Score(syntheticEvent, userCtx)

			err = withRetry(ctx, r.cfg.RetryAttempts, r.cfg.RetryBaseBackoff, JobDailyBSERecalculation, func() error {
				return r.users.UpdateScore(ctx, u.ID, result.Score, now)
			})
			if err != nil {
				failed++
				log.Error().Err(err).Str("user_id", u.ID).Msg("sol: daily recalculation write failed")
				continue
			}
			results = append(results, scoredUser{userID: u.ID, score: result.Score})
		}
	}

	if total > 0 && float64(failed)/float64(total) > 0.10 {
		r.completeJob(ctx, JobDailyBSERecalculation, models.JobStatusFailed,
			"more than 10% of users failed to recalculate", map[string]interface{}{"total": total, "failed": failed})
		return
	}

	if err := r.rebuildLeaderboard(ctx, results, now); err != nil {
		log.Error().Err(err).Msg("sol: leaderboard rebuild failed")
	}

	if _, err := r.leaderboard.PruneOlderThan(ctx, now.Add(-4*7*24*time.Hour)); err != nil {
		log.Error().Err(err).Msg("sol: leaderboard archive prune failed")
	}

	r.completeJob(ctx, JobDailyBSERecalculation, models.JobStatusSuccess, "",
		map[string]interface{}{"total": total, "failed": failed})
}

// scoredUser is one user's freshly computed score, pending leaderboard
// ranking.
type scoredUser struct {
	userID string
	score  int
}

func (r *Runner) rebuildLeaderboard(ctx context.Context, results []scoredUser, now time.Time) error {
	previous, err := r.leaderboard.Current(ctx)
	if err != nil {
		return err
	}
	prevPosition := make(map[string]int, len(previous))
	for _, e := range previous {
		prevPosition[e.UserID] = e.Position
	}

	sorted := append([]scoredUser{}, results...)
	sortByScoreDesc(sorted)

	top := sorted
	if len(top) > 100 {
		top = top[:100]
	}

	entries := make([]models.LeaderboardEntry, 0, len(top))
	for i, row := range top {
		position := i + 1
		entry := models.LeaderboardEntry{
			UserID:        row.userID,
			Position:      position,
			BehaviorScore: row.score,
			CreatedAt:     now,
		}
		if prev, ok := prevPosition[row.userID]; ok {
			p := prev
			entry.PreviousPosition = &p
			entry.PositionChange = p - position
		}
		entries = append(entries, entry)
	}

	return r.leaderboard.Replace(ctx, entries)
}

func sortByScoreDesc(rows []scoredUser) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].score > rows[j-1].score; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

// RunWeeklyChallengesReset implements §4.3's weekly_challenges_and_reset.
func (r *Runner) RunWeeklyChallengesReset(ctx context.Context) {
	now := time.Now().UTC()

	count := 3 + rand.Intn(3) // 3-5 inclusive
	challenges := pickChallenges(r.templates, count, now)

	err := withRetry(ctx, r.cfg.RetryAttempts, r.cfg.RetryBaseBackoff, JobWeeklyChallengesReset, func() error {
		return r.challenges.CreateMany(ctx, challenges)
	})
	if err != nil {
		r.logFailure(ctx, JobWeeklyChallengesReset, now, err)
		return
	}

	err = withRetry(ctx, r.cfg.RetryAttempts, r.cfg.RetryBaseBackoff, JobWeeklyChallengesReset, func() error {
		return r.leaderboard.ArchiveWeekly(ctx, now)
	})
	if err != nil {
		r.logFailure(ctx, JobWeeklyChallengesReset, now, err)
		return
	}

	var resetCount int64
	err = withRetry(ctx, r.cfg.RetryAttempts, r.cfg.RetryBaseBackoff, JobWeeklyChallengesReset, func() error {
		n, err := r.users.ResetWeeklyScores(ctx)
		resetCount = n
		return err
	})
	if err != nil {
		r.logFailure(ctx, JobWeeklyChallengesReset, now, err)
		return
	}

	r.completeJob(ctx, JobWeeklyChallengesReset, models.JobStatusSuccess, "",
		map[string]interface{}{"challenges_created": len(challenges), "users_reset": resetCount})
}

// RunHourlyFlaggedUserDetection implements §4.3's hourly_flagged_user_detection.
func (r *Runner) RunHourlyFlaggedUserDetection(ctx context.Context) {
	now := time.Now().UTC()
	since := now.Add(-time.Hour)

	flags, err := r.flags.Since(ctx, since, now)
	if err != nil {
		r.logFailure(ctx, JobHourlyFlaggedDetection, now, err)
		return
	}
	anomalies, err := r.anomalies.Since(ctx, since, now)
	if err != nil {
		r.logFailure(ctx, JobHourlyFlaggedDetection, now, err)
		return
	}

	perUser := make(map[string]int)
	for _, f := range flags {
		perUser[f.UserID]++
	}
	for _, a := range anomalies {
		for _, u := range a.AffectedUsers {
			perUser[u]++
		}
	}

	var highUsers, mediumUsers []string
	for userID, count := range perUser {
		switch {
		case count >= 5:
			highUsers = append(highUsers, userID)
		case count >= 3:
			mediumUsers = append(mediumUsers, userID)
		}
	}

	totalFlags := len(flags)
	if len(highUsers) > 0 {
		r.alerts.Create(ctx, &models.Alert{
			AlertType: "flagged_users",
			Priority:  models.AlertPriorityHigh,
			Summary:   "users with 5+ risk signals in the last hour",
			Details:   models.JSONB{"high_users": highUsers, "medium_users": mediumUsers, "total_flags": totalFlags},
		})
	} else if totalFlags >= 10 {
		r.alerts.Create(ctx, &models.Alert{
			AlertType: "flagged_users",
			Priority:  models.AlertPriorityMedium,
			Summary:   "elevated risk signal volume in the last hour",
			Details:   models.JSONB{"medium_users": mediumUsers, "total_flags": totalFlags},
		})
	}

	r.completeJob(ctx, JobHourlyFlaggedDetection, models.JobStatusSuccess, "",
		map[string]interface{}{"total_flags": totalFlags, "high_users": len(highUsers), "medium_users": len(mediumUsers)})
}

func (r *Runner) logFailure(ctx context.Context, jobName string, ts time.Time, err error) {
	r.jobLogs.Create(ctx, &models.JobLog{JobName: jobName, Timestamp: ts, Status: models.JobStatusFailed, Error: err.Error()})
	r.alerts.Create(ctx, &models.Alert{
		AlertType: jobName,
		Priority:  models.AlertPriorityHigh,
		Summary:   jobName + " failed",
		Details:   models.JSONB{"error": err.Error()},
	})
}

func (r *Runner) completeJob(ctx context.Context, jobName, status, errMsg string, metadata map[string]interface{}) {
	job := &models.JobLog{JobName: jobName, Timestamp: time.Now().UTC(), Status: status, Error: errMsg, Metadata: metadata}
	if err := r.jobLogs.Create(ctx, job); err != nil {
		log.Error().Err(err).Str("job", jobName).Msg("sol: failed to write job log")
	}
	r.audit.CreateBestEffort(ctx, &models.AuditLog{EventType: models.AuditEventSOLJob, EntityID: jobName, Action: status, Payload: metadata})

	if status == models.JobStatusFailed {
		r.alerts.Create(ctx, &models.Alert{
			AlertType: jobName,
			Priority:  models.AlertPriorityHigh,
			Summary:   jobName + " marked failed",
			Details:   models.JSONB{"metadata": metadata},
		})
	}
}

// ChallengeTemplate is one YAML-declared challenge shape (§12 supplemented
// feature: the templates the python original hard-coded are externalized
// so operators can tune them without a redeploy).
type ChallengeTemplate struct {
	Type           string `yaml:"type"`
	DescriptionFmt string `yaml:"description"`
	MinReward      int    `yaml:"min_reward"`
	MaxReward      int    `yaml:"max_reward"`
}

func LoadTemplates(raw []byte) ([]ChallengeTemplate, error) {
	var templates []ChallengeTemplate
	if err := yaml.Unmarshal(raw, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func pickChallenges(templates []ChallengeTemplate, count int, now time.Time) []models.Challenge {
	if len(templates) == 0 {
		return nil
	}
	var out []models.Challenge
	for i := 0; i < count; i++ {
		t := templates[rand.Intn(len(templates))]
		reward := t.MinReward
		if t.MaxReward > t.MinReward {
			reward += rand.Intn(t.MaxReward - t.MinReward + 1)
		}
		out = append(out, models.Challenge{
			Type:         t.Type,
			Description:  t.DescriptionFmt,
			StartDate:    now,
			EndDate:      now.Add(7 * 24 * time.Hour),
			RewardPoints: reward,
			Active:       true,
		})
	}
	return out
}
