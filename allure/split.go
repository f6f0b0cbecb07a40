package allure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultWindow = 30 * time.Minute
	DefaultLimit  = 100
)

// ErrNoResultsDir is returned when the results directory does not exist.
var ErrNoResultsDir = errors.New("results directory not found")

// ResultFile is one parsed *-result.json. Raw keeps every field so the copy
// written for the report is not narrowed to the fields Result knows about.
type ResultFile struct {
	Path    string
	ModTime time.Time
	Result  Result
	Raw     map[string]any
}

// Scan reads every *-result.json in dir, newest modification time first.
// Files that cannot be read or are not JSON objects are skipped. A record
// whose fields do not fit Result (a fractional start, a numeric label value)
// is kept with the fields that could be read.
func Scan(dir string) ([]ResultFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoResultsDir, dir)
		}
		return nil, fmt.Errorf("read results dir %q: %w", dir, err)
	}

	var files []ResultFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ResultSuffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil {
			log.Debugf("allure.scan: stat failed file=%s error=%v", path, err)
			continue
		}
		b, err := os.ReadFile(path)
		if err != nil {
			log.Debugf("allure.scan: read failed file=%s error=%v", path, err)
			continue
		}
		rf := ResultFile{Path: path, ModTime: info.ModTime()}
		if err := json.Unmarshal(b, &rf.Raw); err != nil {
			log.Debugf("allure.scan: invalid json file=%s error=%v", path, err)
			continue
		}
		if err := json.Unmarshal(b, &rf.Result); err != nil {
			log.Debugf("allure.scan: lenient decode file=%s error=%v", path, err)
			rf.Result = resultFromRaw(rf.Raw)
		}
		files = append(files, rf)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Filter keeps the files belonging to c that started after now-window (or
// carry no timestamp), capped at limit. The input order is preserved, so
// callers pass newest first to keep the latest run.
func Filter(files []ResultFile, c Category, now time.Time, window time.Duration, limit int) (matched, kept []ResultFile) {
	for _, f := range files {
		if f.Result.Matches(c) {
			matched = append(matched, f)
		}
	}

	cutoff := now.Add(-window).UnixMilli()
	for _, f := range matched {
		start := f.Result.StartMillis()
		if start == 0 || start > cutoff {
			kept = append(kept, f)
		}
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return matched, kept
}

// Generator turns a directory of results into an HTML report.
type Generator interface {
	Generate(ctx context.Context, resultsDir, outputDir string) error
}

// Splitter builds a per-category report from a shared results directory.
type Splitter struct {
	ResultsDir string
	// WorkDir holds the temporary results copy. Defaults to the parent of
	// ResultsDir.
	WorkDir   string
	Window    time.Duration
	Limit     int
	Generator Generator
	Now       func() time.Time
}

type SplitSummary struct {
	Category  Category `json:"category"`
	Scanned   int      `json:"scanned"`
	Matched   int      `json:"matched"`
	Kept      int      `json:"kept"`
	OutputDir string   `json:"output_dir"`
	Generated bool     `json:"generated"`
}

func NewSplitter(resultsDir string, gen Generator) *Splitter {
	return &Splitter{
		ResultsDir: resultsDir,
		Window:     DefaultWindow,
		Limit:      DefaultLimit,
		Generator:  gen,
		Now:        time.Now,
	}
}

// Split writes the matching, recent results of c into a temporary directory,
// generates the report into outputDir and removes the temporary directory.
// A category with no results at all is skipped without error; one whose
// results all fall outside the window gets an empty report.
func (s *Splitter) Split(ctx context.Context, c Category, outputDir string) (SplitSummary, error) {
	sum := SplitSummary{Category: c, OutputDir: outputDir}
	if s.Generator == nil {
		return sum, fmt.Errorf("splitter has no report generator")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	files, err := Scan(s.ResultsDir)
	if err != nil {
		return sum, err
	}
	sum.Scanned = len(files)

	matched, kept := Filter(files, c, now(), s.Window, s.Limit)
	sum.Matched = len(matched)
	sum.Kept = len(kept)
	if len(matched) == 0 {
		log.Warnf("allure.split: no results found category=%s results_dir=%s", c, s.ResultsDir)
		return sum, nil
	}
	log.Infof("allure.split: found %d results in total, using %d most recent category=%s", sum.Matched, sum.Kept, c)
	if len(kept) == 0 {
		// Still generate, so outputDir reflects that the latest window was empty.
		log.Warnf("allure.split: no recent results category=%s window=%s", c, s.Window)
	}

	workDir := s.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(filepath.Clean(s.ResultsDir))
	}
	tempDir := filepath.Join(workDir, fmt.Sprintf("%s-temp-%d", filepath.Base(filepath.Clean(s.ResultsDir)), now().UnixMilli()))
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return sum, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			log.Warnf("allure.split: temp dir cleanup failed dir=%s error=%v", tempDir, err)
		}
	}()

	for i, f := range kept {
		if err := WriteJSON(filepath.Join(tempDir, fmt.Sprintf("%d%s", i, ResultSuffix)), f.Raw); err != nil {
			return sum, err
		}
		copyAttachments(s.ResultsDir, tempDir, f.Result.Attachments)
	}

	if err := s.Generator.Generate(ctx, tempDir, outputDir); err != nil {
		log.Errorf("allure.split: report generation failed category=%s error=%v", c, err)
		return sum, fmt.Errorf("generate %s report: %w", c, err)
	}
	sum.Generated = true
	log.Infof("allure.split: report generated category=%s output=%s", c, outputDir)
	return sum, nil
}

// resultFromRaw reads the fields Split relies on from a generic decode.
// Numbers are truncated to milliseconds and label values are stringified.
func resultFromRaw(raw map[string]any) Result {
	r := Result{
		UUID:      rawString(raw["uuid"]),
		HistoryID: rawString(raw["historyId"]),
		Name:      rawString(raw["name"]),
		FullName:  rawString(raw["fullName"]),
		Status:    rawString(raw["status"]),
		Start:     rawMillis(raw["start"]),
		Stop:      rawMillis(raw["stop"]),
	}
	if t, ok := raw["time"].(map[string]any); ok {
		r.Time = &Timing{Start: rawMillis(t["start"]), Stop: rawMillis(t["stop"])}
	}
	if labels, ok := raw["labels"].([]any); ok {
		for _, l := range labels {
			m, ok := l.(map[string]any)
			if !ok {
				continue
			}
			r.Labels = append(r.Labels, Label{Name: rawString(m["name"]), Value: rawString(m["value"])})
		}
	}
	if atts, ok := raw["attachments"].([]any); ok {
		for _, a := range atts {
			m, ok := a.(map[string]any)
			if !ok {
				continue
			}
			r.Attachments = append(r.Attachments, Attachment{Name: rawString(m["name"]), Source: rawString(m["source"]), Type: rawString(m["type"])})
		}
	}
	return r
}

func rawString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func rawMillis(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return int64(n)
		}
	}
	return 0
}

// copyAttachments copies attachment files referenced by a result. Missing
// attachments only produce a log line; the report is still useful without them.
func copyAttachments(srcDir, dstDir string, attachments []Attachment) {
	for _, a := range attachments {
		if a.Source == "" || a.Source != filepath.Base(a.Source) {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, a.Source), filepath.Join(dstDir, a.Source)); err != nil {
			log.Debugf("allure.split: attachment not copied source=%s error=%v", a.Source, err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
