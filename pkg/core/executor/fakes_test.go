package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/types"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

type fakeTopics struct {
	candidates []workflow.TopicCandidate
	err        error
	delay      time.Duration // 忽略ctx的上游延迟
}

func (f *fakeTopics) Discover(_ context.Context, count int) ([]workflow.TopicCandidate, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	if count < len(f.candidates) {
		return f.candidates[:count], nil
	}
	return f.candidates, nil
}

type fakeGenerator struct {
	draft *types.Draft
	err   error
	block bool
	calls int32
	last  types.GenerateRequest
	mu    sync.Mutex
}

func (f *fakeGenerator) Generate(ctx context.Context, req types.GenerateRequest) (*types.Draft, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", types.ErrGenerationTimeout, ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	d := *f.draft
	return &d, nil
}

type fakeImages struct {
	err error
}

func (f *fakeImages) Generate(_ context.Context, prompts []string, _ string) ([]workflow.ImageResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]workflow.ImageResult, 0, len(prompts))
	for i, p := range prompts {
		out = append(out, workflow.ImageResult{Prompt: p, URL: fmt.Sprintf("https://img/%d.png", i)})
	}
	return out, nil
}

type fakeChecker struct {
	verdict *workflow.ComplianceVerdict
	err     error
}

func (f *fakeChecker) Check(_ context.Context, _ types.ComplianceSubject) (*workflow.ComplianceVerdict, error) {
	return f.verdict, f.err
}

type recordingChecker struct {
	verdict *workflow.ComplianceVerdict
	last    types.ComplianceSubject
}

func (r *recordingChecker) Check(_ context.Context, subject types.ComplianceSubject) (*workflow.ComplianceVerdict, error) {
	r.last = subject
	return r.verdict, nil
}

type fakeReview struct {
	err     error
	notices []types.ReviewNotice
	mu      sync.Mutex
}

func (f *fakeReview) NotifyReview(_ context.Context, n types.ReviewNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return f.err
}

type fakePublisher struct {
	failures int32 // 前N次失败
	calls    int32
}

func (f *fakePublisher) Publish(_ context.Context, _ types.PublishRequest) (*workflow.PublishResult, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.failures) {
		if n%2 == 0 {
			return &workflow.PublishResult{Success: false, Error: "rate limited"}, nil
		}
		return nil, errors.New("connection refused")
	}
	return &workflow.PublishResult{Success: true, ID: "note-123"}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	records []*workflow.ExecutionRecord
	block   bool
}

func (s *recordingSink) Append(ctx context.Context, rec *workflow.ExecutionRecord) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func passVerdict() *workflow.ComplianceVerdict {
	return &workflow.ComplianceVerdict{Status: workflow.CompliancePass, RiskLevel: workflow.RiskLow}
}

func sampleCandidates() []workflow.TopicCandidate {
	return []workflow.TopicCandidate{
		{Title: "存款利率调整", Source: "weibo", Score: 95},
		{Title: "年轻人理财新方式", Source: "baidu", Score: 90},
		{Title: "信用卡积分攻略", Source: "weibo", Score: 85},
		{Title: "房贷提前还款", Source: "baidu", Score: 80},
		{Title: "养老金规划", Source: "weibo", Score: 75},
		{Title: "基金定投心得", Source: "baidu", Score: 70},
	}
}

func sampleDraft() *types.Draft {
	return &types.Draft{
		Titles:       []string{"姐妹们！理财小技巧"},
		Body:         "今天和大家聊聊日常打理钱的方法，理财有风险，投资需谨慎。",
		Tags:         []string{"理财", "银行"},
		ImagePrompts: []string{"p1", "p2", "p3"},
	}
}

type fixture struct {
	topics    *fakeTopics
	generator *fakeGenerator
	images    *fakeImages
	topicChk  *fakeChecker
	contChk   *fakeChecker
	review    *fakeReview
	publisher *fakePublisher
	sink      *recordingSink
}

func newFixture() *fixture {
	return &fixture{
		topics:    &fakeTopics{candidates: sampleCandidates()},
		generator: &fakeGenerator{draft: sampleDraft()},
		images:    &fakeImages{},
		topicChk:  &fakeChecker{verdict: passVerdict()},
		contChk:   &fakeChecker{verdict: passVerdict()},
		review:    &fakeReview{},
		publisher: &fakePublisher{},
		sink:      &recordingSink{},
	}
}

func (f *fixture) collaborators() types.Collaborators {
	return types.Collaborators{
		Topics:            f.topics,
		Generator:         f.generator,
		Images:            f.images,
		TopicCompliance:   f.topicChk,
		ContentCompliance: f.contChk,
		Review:            f.review,
		Publisher:         f.publisher,
	}
}
