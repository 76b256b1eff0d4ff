package report

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"time"

	"github.com/formeye/internal/history"
	"gopkg.in/gomail.v2"
)

const digestTemplate = `
<html>
<body>
<h2>FormEye delivery digest</h2>
<p>{{.Date}}</p>
<table border="1" cellpadding="4" cellspacing="0">
  <tr><th>Rule</th><th>Sent</th><th>Failed</th><th>Skipped</th><th>Success rate</th></tr>
  {{range .PerRule}}
  <tr>
    <td>{{.RuleName}}</td>
    <td>{{.Sent}}</td>
    <td>{{.Failed}}</td>
    <td>{{.Skipped}}</td>
    <td>{{printf "%.1f%%" .SuccessPct}}</td>
  </tr>
  {{end}}
  <tr>
    <td><b>Total</b></td>
    <td><b>{{.Total.Sent}}</b></td>
    <td><b>{{.Total.Failed}}</b></td>
    <td><b>{{.Total.Skipped}}</b></td>
    <td><b>{{printf "%.1f%%" .Total.SuccessPct}}</b></td>
  </tr>
</table>
</body>
</html>`

type Config struct {
	SMTPHost string
	SMTPPort int
	From     string
	Password string
	To       []string
}

// Generator emails a daily rollup of delivery outcomes.
type Generator struct {
	ledger *history.Ledger
	dialer *gomail.Dialer
	config Config
	tmpl   *template.Template
}

type digestRow struct {
	RuleName   string
	Sent       int64
	Failed     int64
	Skipped    int64
	SuccessPct float64
}

type digestData struct {
	Date    string
	PerRule []digestRow
	Total   digestRow
}

func NewGenerator(ledger *history.Ledger, config Config) (*Generator, error) {
	tmpl, err := template.New("digest").Parse(digestTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest template: %v", err)
	}
	return &Generator{
		ledger: ledger,
		dialer: gomail.NewDialer(config.SMTPHost, config.SMTPPort, config.From, config.Password),
		config: config,
		tmpl:   tmpl,
	}, nil
}

// Generate renders the digest HTML for the current stats.
func (g *Generator) Generate() (string, error) {
	stats, err := g.ledger.Stats()
	if err != nil {
		return "", fmt.Errorf("failed to collect stats: %v", err)
	}

	data := digestData{
		Date:  time.Now().Format("2006-01-02"),
		Total: toRow("Total", stats.Total),
	}
	for _, rs := range stats.PerRule {
		data.PerRule = append(data.PerRule, toRow(rs.RuleName, rs))
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render digest: %v", err)
	}
	return buf.String(), nil
}

// SendDaily renders and emails the digest to the configured receivers.
func (g *Generator) SendDaily() error {
	body, err := g.Generate()
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", g.config.From)
	m.SetHeader("To", g.config.To...)
	m.SetHeader("Subject", "FormEye delivery digest "+time.Now().Format("2006-01-02"))
	m.SetBody("text/html", body)

	return g.dialer.DialAndSend(m)
}

// Run sends a digest once per interval until stop is closed.
func (g *Generator) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := g.SendDaily(); err != nil {
				log.Printf("failed to send delivery digest: %v", err)
			}
		case <-stop:
			return
		}
	}
}

func toRow(name string, rs history.RuleStats) digestRow {
	return digestRow{
		RuleName:   name,
		Sent:       rs.Sent,
		Failed:     rs.Failed,
		Skipped:    rs.Skipped,
		SuccessPct: rs.SuccessRate * 100,
	}
}
