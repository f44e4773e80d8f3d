package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-metrics/internal/pipeline"
	"github.com/wonny/aegis-metrics/internal/scheduler"
	"github.com/wonny/aegis-metrics/internal/scheduler/jobs"
	"github.com/wonny/aegis-metrics/internal/universe"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "스케줄러 관리",
	Long: `cron 스케줄에 따라 run 을 반복 실행합니다.
실패 종목의 재시도는 반복 실행으로 이루어집니다 (재시도 한도 내).

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업과 다음 실행 시각
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/metrics schedule start --universe universe.txt
  go run ./cmd/metrics schedule run metrics_pipeline --universe universe.txt`,
}

var (
	scheduleStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- metrics_pipeline: SCHEDULE_CRON (기본 평일 22:30, 초 단위 6필드)
- checkpoint_report: 매시 정각 (상태 로그)

스케줄러는 Ctrl+C로 종료할 수 있습니다. 진행 중인 run 은 현재 종목까지 처리 후 멈춥니다.`,
		RunE: runScheduler,
	}

	scheduleListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	scheduleRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

var (
	scheduleUniverse string
	scheduleCron     string
)

const reportSchedule = "0 0 * * * *"

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleStartCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)

	scheduleCmd.PersistentFlags().StringVar(&scheduleUniverse, "universe", "", "universe file or URL")
	scheduleCmd.PersistentFlags().StringVar(&scheduleCron, "cron", "", "override SCHEDULE_CRON")
}

// initScheduler wires the jobs; the caller owns a.Close
func initScheduler(ctx context.Context, a *app) (*scheduler.Scheduler, error) {
	if scheduleUniverse == "" {
		return nil, errors.New("--universe is required")
	}

	orch, err := a.orchestrator(ctx, pipeline.OptionsFromConfig(a.cfg.Pipeline))
	if err != nil {
		return nil, err
	}

	cronSpec := a.cfg.ScheduleCron
	if scheduleCron != "" {
		cronSpec = scheduleCron
	}

	sched := scheduler.New(a.log, scheduler.WithClock(a.clock))
	loader := a.universeLoader(ctx, universe.Options{DotToDash: true})

	if err := sched.AddJob(jobs.NewMetricsJob(orch, loader, scheduleUniverse, cronSpec, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewCheckpointReportJob(a.store, reportSchedule, a.log)); err != nil {
		return nil, err
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Metrics Scheduler ===")

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(ctx, a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	PrintSuccess("Scheduler started successfully")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")
	printJobStats(sched)

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(ctx, a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// entries only get a next time once the cron loop runs
	sched.Start()
	defer sched.Stop()
	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]
	fmt.Printf("Running job: %s\n", jobName)

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(ctx, a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Ctrl+C → 작업 컨텍스트 취소
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		sched.Stop()
	}()

	result, err := sched.RunJob(jobName)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("❌ job %s failed after %d attempt(s): %s", jobName, result.Attempts, result.Error)
	}

	PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, result.Duration))
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.GetAllJobs() {
		cronExpr, _ := sched.JobSchedule(name)
		next, _ := sched.NextRun(name)
		line := fmt.Sprintf("  - %-20s %s", name, cronExpr)
		if !next.IsZero() {
			line += "  next: " + next.Format("2006-01-02 15:04:05")
		}
		fmt.Println(line)
	}
}

// printJobStats shows the runs of this scheduler process; only meaningful after start
func printJobStats(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	fmt.Println("\nJob runs (this session):")
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		line := fmt.Sprintf("  - %-20s runs=%d ok=%d failed=%d", name, st.TotalRuns, st.SuccessCount, st.FailureCount)
		if st.LastError != "" {
			line += "  last error: " + truncate(st.LastError, 60)
		}
		fmt.Println(line)
	}
}
