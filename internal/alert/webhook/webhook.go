// Package webhook implements alert.Notifier by posting JSON payloads to a
// Lark (Feishu) incoming-webhook URL, grounded on
// UnifiedClient::PushLarkNotifyQueue / Common::NotifyLark_Change. Title
// suffixes are kept verbatim from the original since they are wire-visible
// alert content, not internal naming.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jasonwang1/registercenter/internal/model"
)

const (
	suffixRegister       = "-服务注册"
	suffixOnline         = "-服务上线"
	suffixOffline        = "-服务下线"
	suffixDependencyGap  = "-服务缺失"
	requestTimeout       = 2 * time.Second
)

// Notifier posts alerts to a single Lark webhook URL.
type Notifier struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a Notifier. A nil logger falls back to slog.Default.
func New(url string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:        url,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

type cardPayload struct {
	MsgType string `json:"msg_type"`
	Content struct {
		Text string `json:"text"`
	} `json:"content"`
}

func statusSuffix(s model.Status) (string, bool) {
	switch s {
	case model.StatusRegister:
		return suffixRegister, true
	case model.StatusOnline:
		return suffixOnline, true
	case model.StatusOffline:
		return suffixOffline, true
	default:
		return "", false
	}
}

// NotifyChange posts a registered/online/offline alert for inst.
func (n *Notifier) NotifyChange(ctx context.Context, inst model.ServiceInstance) error {
	suffix, ok := statusSuffix(inst.Status)
	if !ok {
		return nil
	}
	title := inst.Nickname + suffix
	body := fmt.Sprintf("%s addr=%s service=%s semver=%s", title, inst.Addr, inst.ServiceName, inst.Semver)
	return n.post(ctx, body)
}

// NotifyDependencyGap posts a missing-dependency alert, naming exemplar as
// the representative instance of the demanded type and demandedBy as the
// (type, semver) descriptors of every instance declaring the dependency.
func (n *Notifier) NotifyDependencyGap(ctx context.Context, group string, exemplar model.ServiceInstance, relyType int, relySemver string, demandedBy []string) error {
	title := exemplar.Nickname + suffixDependencyGap
	body := fmt.Sprintf("%s group=%s rely_type=%d rely_semver=%s demanded_by=[%s]",
		title, group, relyType, relySemver, strings.Join(demandedBy, ", "))
	return n.post(ctx, body)
}

func (n *Notifier) post(ctx context.Context, text string) error {
	if n.url == "" {
		return nil
	}
	var payload cardPayload
	payload.MsgType = "text"
	payload.Content.Text = text

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", "error", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook delivery rejected", "status", resp.StatusCode)
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
