package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"summary-engine/internal/aggregator"
	"summary-engine/internal/config"
	"summary-engine/internal/prompt"
	"summary-engine/internal/ratelimit"
	"summary-engine/internal/segmenter"
	"summary-engine/internal/shared/infra"
	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/storage"
	"summary-engine/internal/worker"
	"summary-engine/pkg/logging"
)

// loadConfig 按全局 --config 加载配置
func loadConfig(c *cli.Context) *config.Config {
	if dir := c.String("config"); dir != "" {
		config.SetConfigDir(dir)
	}
	return config.Load()
}

func openInfra(c *cli.Context) (*config.Config, *infra.Infrastructure, error) {
	cfg := loadConfig(c)
	inf, err := infra.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, inf, nil
}

func printYAML(v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func firstArg(c *cli.Context, name string) (string, error) {
	if c.NArg() < 1 || c.Args().First() == "" {
		return "", fmt.Errorf("missing %s", name)
	}
	return c.Args().First(), nil
}

// ============================================================================
// segment
// ============================================================================

type segmentReport struct {
	Kind              model.Kind      `yaml:"kind"`
	InstructionTokens int             `yaml:"instruction_tokens"`
	MaxBucketTokens   int             `yaml:"max_bucket_tokens"`
	Stats             segmenter.Stats `yaml:"stats"`
	Buckets           []bucketLine    `yaml:"buckets"`
}

type bucketLine struct {
	Index     int    `yaml:"index"`
	Tokens    int    `yaml:"tokens"`
	Sentences int    `yaml:"sentences"`
	Text      string `yaml:"text,omitempty"`
}

// SegmentAction 离线切分预览
func SegmentAction(c *cli.Context) error {
	path, err := firstArg(c, "file")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cfg := loadConfig(c)
	seg, err := segmenter.NewFromConfig(cfg.Model)
	if err != nil {
		return err
	}
	kind := model.Kind(c.String("kind"))
	tpl, err := prompt.For(kind)
	if err != nil {
		return err
	}
	instruction := tpl.Instruction(c.String("language"), c.String("source-language"))

	buckets, stats, err := seg.Segment(string(data), instruction)
	if err != nil {
		return err
	}
	report := segmentReport{
		Kind:              kind,
		InstructionTokens: seg.Counter().Count(instruction),
		MaxBucketTokens:   seg.MaxBucketTokens(instruction),
		Stats:             stats,
	}
	for _, b := range buckets {
		line := bucketLine{Index: b.Index, Tokens: b.Tokens, Sentences: b.Sentences}
		if c.Bool("text") {
			line.Text = b.Text
		}
		report.Buckets = append(report.Buckets, line)
	}
	return printYAML(report)
}

// ============================================================================
// status / result
// ============================================================================

type jobLine struct {
	Index  int          `yaml:"index"`
	ID     string       `yaml:"id"`
	Status model.Status `yaml:"status"`
	Tokens int64        `yaml:"tokens"`
	Cost   float64      `yaml:"cost"`
	Error  string       `yaml:"error,omitempty"`
}

// StatusAction 产物与 Job 状态
func StatusAction(c *cli.Context) error {
	id, err := firstArg(c, "artifact id")
	if err != nil {
		return err
	}
	_, inf, err := openInfra(c)
	if err != nil {
		return err
	}
	defer inf.Close()

	ctx := c.Context
	a, err := inf.Storage.GetArtifact(ctx, id)
	if err != nil {
		return err
	}
	jobs, err := inf.Storage.ListJobsByArtifact(ctx, id)
	if err != nil {
		return err
	}

	counts := map[model.Status]int{}
	lines := make([]jobLine, 0, len(jobs))
	for _, j := range jobs {
		counts[j.Status]++
		l := jobLine{Index: j.Index, ID: j.ID, Status: j.Status, Tokens: j.TokensUsed, Cost: j.Cost}
		if j.Status == model.StatusError {
			l.Error = aggregator.FailureMessage(j.Result)
		}
		lines = append(lines, l)
	}
	return printYAML(map[string]interface{}{
		"artifact": map[string]interface{}{
			"id":               a.ID,
			"kind":             a.Kind,
			"status":           a.Status,
			"owner_id":         a.OwnerID,
			"total_tokens":     a.TotalTokens,
			"total_cost":       a.TotalCost,
			"reserved_credits": a.ReservedCredits,
			"created_at":       a.CreatedAt.Format(time.RFC3339),
		},
		"counts": counts,
		"jobs":   lines,
	})
}

// ResultAction 打印拼装后的 Markdown
func ResultAction(c *cli.Context) error {
	id, err := firstArg(c, "artifact id")
	if err != nil {
		return err
	}
	_, inf, err := openInfra(c)
	if err != nil {
		return err
	}
	defer inf.Close()

	a, err := inf.Storage.GetArtifact(c.Context, id)
	if err != nil {
		return err
	}
	jobs, err := inf.Storage.ListJobsByArtifact(c.Context, id)
	if err != nil {
		return err
	}
	out := aggregator.Assemble(a, jobs)
	if !out.Complete {
		fmt.Fprintf(os.Stderr, "artifact %s is %s; result is partial\n", id, out.Status)
	}
	for _, p := range out.Parts {
		if p.Error != "" {
			fmt.Fprintf(os.Stderr, "part %d failed: %s\n", p.Index, p.Error)
		}
	}
	fmt.Println(out.Text)
	return nil
}

// ============================================================================
// reconcile / usage
// ============================================================================

// ReconcileAction 单次孤儿巡检
func ReconcileAction(c *cli.Context) error {
	cfg, inf, err := openInfra(c)
	if err != nil {
		return err
	}
	defer inf.Close()

	rc := cfg.Reconcile
	rc.Requeue = c.Bool("requeue")
	if d := c.Duration("stale"); d > 0 {
		rc.StaleThreshold = d
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: "text", Output: "stderr", Component: "summaryctl"})
	r := worker.NewReconciler(inf.Storage, inf.Storage, inf.Queue, rc, nil, log)

	report, err := r.Sweep(c.Context)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(report.Jobs))
	for _, j := range report.Jobs {
		ids = append(ids, j.ArtifactID+"/"+j.ID)
	}
	return printYAML(map[string]interface{}{
		"detected": report.Detected,
		"requeued": report.Requeued,
		"failed":   report.Failed,
		"jobs":     ids,
	})
}

// UsageAction 当前限流窗口用量
func UsageAction(c *cli.Context) error {
	cfg, inf, err := openInfra(c)
	if err != nil {
		return err
	}
	defer inf.Close()

	l := ratelimit.New(inf.Windows, cfg.Model.Name, cfg.RateLimit, nil)
	key, used, err := l.Usage(c.Context)
	if err != nil {
		return err
	}
	return printYAML(map[string]interface{}{
		"window":  key,
		"used":    used,
		"ceiling": l.Ceiling(),
	})
}

// ============================================================================
// credit / import
// ============================================================================

// CreditAction 增加额度
func CreditAction(c *cli.Context) error {
	amount := c.Int64("amount")
	if amount <= 0 {
		return errors.New("amount must be positive")
	}
	_, inf, err := openInfra(c)
	if err != nil {
		return err
	}
	defer inf.Close()

	owner := c.String("owner")
	if err := inf.Storage.Credit(c.Context, owner, amount); err != nil {
		return err
	}
	b, err := inf.Storage.GetBalance(c.Context, owner)
	if err != nil {
		return err
	}
	return printYAML(b)
}

// ImportAction 导入已提取文本的文档
func ImportAction(c *cli.Context) error {
	path, err := firstArg(c, "file")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, inf, err := openInfra(c)
	if err != nil {
		return err
	}
	defer inf.Close()

	doc := &model.Document{
		Key:     c.String("key"),
		Name:    c.String("name"),
		OwnerID: c.String("owner"),
	}
	if doc.Name == "" {
		doc.Name = filepath.Base(path)
	}
	if sep := c.String("page-separator"); sep != "" {
		doc.Pages = splitPages(string(data), sep)
	} else {
		doc.Text = string(data)
	}

	w, ok := inf.Documents.(storage.DocumentWriter)
	if !ok {
		w = inf.Storage
	}
	if err := w.PutDocument(context.WithoutCancel(c.Context), doc); err != nil {
		return err
	}
	return printYAML(map[string]interface{}{"key": doc.Key, "pages": len(doc.Pages), "bytes": len(data)})
}

// splitPages 按独占一行的分隔符切分页面
func splitPages(text, sep string) []string {
	var pages []string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == sep {
			pages = append(pages, strings.Join(cur, "\n"))
			cur = nil
			continue
		}
		cur = append(cur, line)
	}
	return append(pages, strings.Join(cur, "\n"))
}
