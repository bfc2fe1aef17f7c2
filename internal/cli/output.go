package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/pendergraft/crowdfund-deploy/internal/pipeline"
)

var (
	okMark      = color.New(color.FgGreen).Sprint("✓")
	failMark    = color.New(color.FgRed).Sprint("✗")
	skipMark    = color.New(color.FgYellow).Sprint("-")
	headerStyle = color.New(color.Bold)
)

// printer writes human-facing progress lines
type printer struct {
	w io.Writer
}

func (p printer) header(format string, args ...any) {
	fmt.Fprintln(p.w, headerStyle.Sprintf(format, args...))
}

func (p printer) field(label, value string) {
	fmt.Fprintf(p.w, "  %-12s %s\n", label+":", value)
}

// step prints one finished pipeline step
func (p printer) step(res pipeline.StepResult) {
	name := displayStepName(res.Name)
	switch res.Status {
	case pipeline.StatusOK:
		fmt.Fprintf(p.w, "  %s %-22s %s (%s)\n", okMark, name, res.Detail, res.Duration.Round(time.Millisecond))
	case pipeline.StatusSkipped:
		fmt.Fprintf(p.w, "  %s %-22s skipped: %s\n", skipMark, name, res.Detail)
	default:
		fmt.Fprintf(p.w, "  %s %-22s %v\n", failMark, name, res.Err)
	}
}

// confirmations prints waiter progress on a single updating line
func (p printer) confirmations(head, target uint64) {
	if head >= target {
		fmt.Fprintf(p.w, "\r  waiting for confirmations: block %d/%d\n", head, target)
		return
	}
	fmt.Fprintf(p.w, "\r  waiting for confirmations: block %d/%d", head, target)
}

// summary prints the outcome of a pipeline run
func (p printer) summary(report *pipeline.Report) {
	fmt.Fprintln(p.w)
	if report.Failed() != nil {
		fmt.Fprintf(p.w, "%s %s\n", failMark, report.Summary())
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", okMark, report.Summary())
	if report.Verification != nil && report.Verification.URL != "" {
		p.field("Explorer", report.Verification.URL)
	}
	if report.RecordID != "" {
		p.field("History ID", report.RecordID)
	}
}

// displayStepName turns "seed:2:Silver" into "seed Silver (#2)"
func displayStepName(name string) string {
	rest, ok := strings.CutPrefix(name, "seed:")
	if !ok {
		return name
	}
	pos, tier, _ := strings.Cut(rest, ":")
	return fmt.Sprintf("seed %s (#%s)", tier, pos)
}

func truncateAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
