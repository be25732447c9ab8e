package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewWorkflowID 生成工作流ID，格式 wf_YYYYMMDD_HHMMSS_<8位hex>
func NewWorkflowID() string {
	return newWorkflowIDAt(time.Now())
}

func newWorkflowIDAt(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("wf_%s_%s", t.Format("20060102_150405"), suffix)
}
