package executor

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// 候选排序后取前N个随机挑选
const topicPickWindow = 5

// TopicLedger 批量实例共享的已用选题账本
type TopicLedger struct {
	mu   sync.Mutex
	used map[string]struct{}
	rnd  *rand.Rand
}

// NewTopicLedger 创建账本，seed 为已使用过的选题标题
func NewTopicLedger(seed []string) *TopicLedger {
	l := &TopicLedger{
		used: make(map[string]struct{}, len(seed)),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, title := range seed {
		if title != "" {
			l.used[title] = struct{}{}
		}
	}
	return l
}

// Used 返回已使用的选题
func (l *TopicLedger) Used() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.used))
	for title := range l.used {
		out = append(out, title)
	}
	sort.Strings(out)
	return out
}

// Pick 原子地挑选并占用一个选题
// 先排除账本和 exclude 中的标题；全部被用过时退回到完整候选集
func (l *TopicLedger) Pick(candidates []workflow.TopicCandidate, exclude []string) (workflow.TopicCandidate, bool) {
	picked, _, ok := l.Reserve(candidates, exclude)
	return picked, ok
}

// Reserve 与 Pick 相同，另返回撤销本次占用的函数
// 撤销只移除本次新增的占用，回退到已用选题时撤销为空操作
func (l *TopicLedger) Reserve(candidates []workflow.TopicCandidate, exclude []string) (workflow.TopicCandidate, func(), bool) {
	if len(candidates) == 0 {
		return workflow.TopicCandidate{}, func() {}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	skip := make(map[string]struct{}, len(exclude))
	for _, title := range exclude {
		skip[title] = struct{}{}
	}

	fresh := make([]workflow.TopicCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := l.used[c.Title]; ok {
			continue
		}
		if _, ok := skip[c.Title]; ok {
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		fresh = append(fresh, candidates...)
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Score > fresh[j].Score
	})
	window := fresh
	if len(window) > topicPickWindow {
		window = window[:topicPickWindow]
	}

	picked := window[l.rnd.Intn(len(window))]
	if _, held := l.used[picked.Title]; held {
		return picked, func() {}, true
	}
	l.used[picked.Title] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.used, picked.Title)
		})
	}
	return picked, release, true
}
