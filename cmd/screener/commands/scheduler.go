package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/scheduler"
	"github.com/wonny/screener/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `컨센서스 스냅샷 작업을 스케줄하거나 즉시 실행합니다.

Subcommands:
  start   - 스케줄러 시작 (Ctrl+C로 종료)
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (동기)

Example:
  go run ./cmd/screener scheduler start
  go run ./cmd/screener scheduler run consensus_snapshot`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// initScheduler registers every job against bootstrapped deps
func initScheduler(d *deps) (*scheduler.Scheduler, error) {
	sched := scheduler.New(d.log)

	job := jobs.NewConsensusJob(
		d.aggregator,
		d.store,
		d.cfg.Scheduler.ConsensusSchedule,
		d.cfg.Scheduler.OutputDir,
		d.cfg.Scheduler.MinConfirmation,
		d.log,
	)
	if err := sched.AddJob(job); err != nil {
		return nil, fmt.Errorf("add job %s: %w", job.Name(), err)
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	d, err := bootstrap()
	if err != nil {
		return err
	}
	defer d.close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	for name, st := range sched.Stats() {
		fmt.Printf("📊 %s: %d runs, %d failures (%.1f%% success)\n", name, st.TotalRuns, st.FailureCount, st.SuccessRate*100)
	}
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, err := bootstrap()
	if err != nil {
		return err
	}
	defer d.close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Println("Registered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	d, err := bootstrap()
	if err != nil {
		return err
	}
	defer d.close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", args[0])
	result, err := sched.RunNow(args[0])
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempts: %s", result.JobName, result.Attempts, result.Error)
	}

	fmt.Printf("✅ %s completed in %s\n", result.JobName, result.Duration)
	return nil
}
