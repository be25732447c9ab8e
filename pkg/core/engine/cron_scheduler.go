package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/LENAX/content-pipeline/pkg/core/types"
)

const maxJobExecutions = 100

var (
	// ErrJobNotFound 定时任务未注册
	ErrJobNotFound = errors.New("定时任务未注册")
	// ErrJobRunning 定时任务正在执行
	ErrJobRunning = errors.New("定时任务正在执行")
)

// BatchJob 定时批量任务
type BatchJob struct {
	Name     string
	CronExpr string // 6段表达式（含秒）
	UserID   string
	Count    int
}

// JobTrigger 任务触发方式
type JobTrigger string

const (
	TriggerCron   JobTrigger = "cron"
	TriggerManual JobTrigger = "manual"
)

// JobExecutionStatus 单次执行状态
type JobExecutionStatus string

const (
	JobRunning JobExecutionStatus = "running"
	JobSuccess JobExecutionStatus = "success"
	JobFailure JobExecutionStatus = "failure"
)

// JobInfo 定时任务信息
type JobInfo struct {
	Name     string     `json:"name"`
	CronExpr string     `json:"cron"`
	UserID   string     `json:"user_id"`
	Count    int        `json:"count"`
	NextRun  *time.Time `json:"next_run,omitempty"` // 调度器未启动时为空
	LastRun  *time.Time `json:"last_run,omitempty"`
	Running  bool       `json:"running"`
}

// JobExecution 定时任务的一次执行
type JobExecution struct {
	ID         string             `json:"id"`
	Job        string             `json:"job"`
	Trigger    JobTrigger         `json:"trigger"`
	Status     JobExecutionStatus `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	DurationMs int64              `json:"duration_ms"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Error      string             `json:"error,omitempty"`
}

// SchedulerStatus 调度器状态
type SchedulerStatus struct {
	Running    bool       `json:"running"`
	Jobs       int        `json:"jobs"`
	ActiveRuns int        `json:"active_runs"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

// CronScheduler 定时调度器（对外导出）
type CronScheduler struct {
	cron       *cron.Cron
	manager    types.WorkflowInstanceManager
	jobs       map[string]BatchJob     // 任务名 -> 任务
	entries    map[string]cron.EntryID // 任务名 -> cron.EntryID
	running    map[string]string       // 任务名 -> 正在执行的 execution ID
	lastRun    map[string]time.Time
	executions []*JobExecution // 最近的执行记录，按开始时间正序
	timeout    time.Duration   // 单次批量执行的超时
	startedAt  *time.Time
	wg         sync.WaitGroup
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler(manager types.WorkflowInstanceManager) *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		cron:    cron.New(cron.WithSeconds()), // 支持秒级精度
		manager: manager,
		jobs:    make(map[string]BatchJob),
		entries: make(map[string]cron.EntryID),
		running: make(map[string]string),
		lastRun: make(map[string]time.Time),
		timeout: time.Hour,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RegisterJob 注册定时批量任务（对外导出）
func (cs *CronScheduler) RegisterJob(job BatchJob) error {
	if job.Name == "" {
		return fmt.Errorf("定时任务名称不能为空")
	}
	if job.Count <= 0 {
		return fmt.Errorf("定时任务 %s 的数量必须大于0", job.Name)
	}
	if job.UserID == "" {
		job.UserID = "default"
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.jobs[job.Name]; exists {
		return fmt.Errorf("定时任务 %s 已注册", job.Name)
	}

	// 验证Cron表达式（使用Parser支持秒级精度）
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(job.CronExpr); err != nil {
		return fmt.Errorf("定时任务 %s 的Cron表达式无效: %w", job.Name, err)
	}

	entryID, err := cs.cron.AddFunc(job.CronExpr, func() {
		cs.triggerJob(job)
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}

	cs.jobs[job.Name] = job
	cs.entries[job.Name] = entryID

	log.Printf("✅ [Cron调度器] 已注册定时任务: Name=%s, CronExpr=%s, UserID=%s, Count=%d", job.Name, job.CronExpr, job.UserID, job.Count)
	return nil
}

// UnregisterJob 取消注册定时任务（对外导出）
func (cs *CronScheduler) UnregisterJob(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entryID, exists := cs.entries[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	cs.cron.Remove(entryID)
	delete(cs.jobs, name)
	delete(cs.entries, name)
	delete(cs.lastRun, name)

	log.Printf("✅ [Cron调度器] 已取消注册定时任务: Name=%s", name)
	return nil
}

// triggerJob 由cron触发；上一次执行未结束时跳过本次
func (cs *CronScheduler) triggerJob(job BatchJob) {
	log.Printf("🕐 [Cron调度器] 触发定时任务: Name=%s, Count=%d", job.Name, job.Count)
	exec, err := cs.begin(job, TriggerCron)
	if err != nil {
		log.Printf("⚠️ [Cron调度器] 跳过定时任务: Name=%s, Error=%v", job.Name, err)
		return
	}
	cs.execute(job, exec)
}

// RunJob 手动触发定时任务，立即返回执行记录，批量在后台执行
func (cs *CronScheduler) RunJob(name string) (JobExecution, error) {
	cs.mu.RLock()
	job, exists := cs.jobs[name]
	cs.mu.RUnlock()
	if !exists {
		return JobExecution{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if cs.ctx.Err() != nil {
		return JobExecution{}, errors.New("定时调度器已停止")
	}

	exec, err := cs.begin(job, TriggerManual)
	if err != nil {
		return JobExecution{}, err
	}
	log.Printf("▶️ [Cron调度器] 手动触发定时任务: Name=%s, ExecutionID=%s", name, exec.ID)

	cs.mu.RLock()
	snapshot := *exec
	cs.mu.RUnlock()

	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		cs.execute(job, exec)
	}()
	return snapshot, nil
}

// begin 登记一次执行；同名任务正在执行时返回 ErrJobRunning
func (cs *CronScheduler) begin(job BatchJob, trigger JobTrigger) (*JobExecution, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if id, busy := cs.running[job.Name]; busy {
		return nil, fmt.Errorf("%w: %s (ExecutionID=%s)", ErrJobRunning, job.Name, id)
	}
	exec := &JobExecution{
		ID:        uuid.NewString(),
		Job:       job.Name,
		Trigger:   trigger,
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
	cs.running[job.Name] = exec.ID
	cs.lastRun[job.Name] = exec.StartedAt
	cs.executions = append(cs.executions, exec)
	if n := len(cs.executions); n > maxJobExecutions {
		cs.executions = append([]*JobExecution(nil), cs.executions[n-maxJobExecutions:]...)
	}
	return exec, nil
}

// execute 执行批量并回写执行记录
func (cs *CronScheduler) execute(job BatchJob, exec *JobExecution) {
	ctx, cancel := context.WithTimeout(cs.ctx, cs.timeout)
	defer cancel()

	result, err := cs.manager.StartBatch(ctx, job.UserID, job.Count)
	finished := time.Now()

	cs.mu.Lock()
	delete(cs.running, job.Name)
	exec.FinishedAt = &finished
	exec.DurationMs = finished.Sub(exec.StartedAt).Milliseconds()
	exec.Succeeded = result.Succeeded
	exec.Failed = result.Failed
	if err != nil {
		exec.Status = JobFailure
		exec.Error = err.Error()
	} else {
		exec.Status = JobSuccess
	}
	cs.mu.Unlock()

	if err != nil {
		log.Printf("❌ [Cron调度器] 定时任务执行失败: Name=%s, Error=%v", job.Name, err)
		return
	}
	log.Printf("✅ [Cron调度器] 定时任务完成: Name=%s, 成功=%d, 失败=%d", job.Name, result.Succeeded, result.Failed)
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	now := time.Now()
	cs.mu.Lock()
	cs.startedAt = &now
	cs.mu.Unlock()
	log.Println("✅ [Cron调度器] 已启动")
}

// Stop 停止定时调度器，等待正在执行的任务结束（对外导出）
func (cs *CronScheduler) Stop() {
	cs.cancel()
	<-cs.cron.Stop().Done()
	cs.wg.Wait()
	cs.mu.Lock()
	cs.startedAt = nil
	cs.mu.Unlock()
	log.Println("✅ [Cron调度器] 已停止")
}

// GetRegisteredJobs 获取已注册的任务名称列表（对外导出）
func (cs *CronScheduler) GetRegisteredJobs() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	names := make([]string, 0, len(cs.jobs))
	for name := range cs.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListJobs 返回全部定时任务及其下次执行时间，按名称排序
func (cs *CronScheduler) ListJobs() []JobInfo {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	infos := make([]JobInfo, 0, len(cs.jobs))
	for name, job := range cs.jobs {
		info := JobInfo{
			Name:     name,
			CronExpr: job.CronExpr,
			UserID:   job.UserID,
			Count:    job.Count,
		}
		if next := cs.cron.Entry(cs.entries[name]).Next; !next.IsZero() {
			info.NextRun = &next
		}
		if last, ok := cs.lastRun[name]; ok {
			info.LastRun = &last
		}
		_, info.Running = cs.running[name]
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Executions 返回最近的执行记录，最新的在前
func (cs *CronScheduler) Executions(limit int) []JobExecution {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if limit <= 0 || limit > len(cs.executions) {
		limit = len(cs.executions)
	}
	out := make([]JobExecution, 0, limit)
	for i := len(cs.executions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *cs.executions[i])
	}
	return out
}

// Status 调度器状态
func (cs *CronScheduler) Status() SchedulerStatus {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return SchedulerStatus{
		Running:    cs.startedAt != nil,
		Jobs:       len(cs.jobs),
		ActiveRuns: len(cs.running),
		StartedAt:  cs.startedAt,
	}
}

// NextRun 返回任务的下一次执行时间
func (cs *CronScheduler) NextRun(name string) (time.Time, bool) {
	cs.mu.RLock()
	entryID, exists := cs.entries[name]
	cs.mu.RUnlock()
	if !exists {
		return time.Time{}, false
	}
	return cs.cron.Entry(entryID).Next, true
}
