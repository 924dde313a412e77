// Package pdf 用无头 Chromium 把 HTML 打印为 PDF。
package pdf

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Generator 每次调用启动独立的浏览器进程，同时运行的进程数受 maxConcurrent 限制。
type Generator struct {
	bin     string
	timeout time.Duration
	slots   chan struct{}
}

// NewGenerator 创建 Generator。bin 为空时自动查找本机 Chromium。
func NewGenerator(bin string, timeout time.Duration, maxConcurrent int) *Generator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Generator{
		bin:     strings.TrimSpace(bin),
		timeout: timeout,
		slots:   make(chan struct{}, maxConcurrent),
	}
}

func (g *Generator) acquire(ctx context.Context) (release func(), err error) {
	select {
	case g.slots <- struct{}{}:
		return func() { <-g.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for renderer slot: %w", ctx.Err())
	}
}

// FromHTML 渲染 HTML 并返回 PDF 字节。超时包含排队等待的时间。
func (g *Generator) FromHTML(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	release, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	browser, cleanup, err := g.launch(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.SetDocumentContent(htmlContent); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	if err := (proto.EmulationSetEmulatedMedia{Media: "print"}).Call(page); err != nil {
		return nil, fmt.Errorf("emulate print media: %w", err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

func (g *Generator) launch(ctx context.Context) (*rod.Browser, func(), error) {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)

	if g.bin != "" {
		l = l.Bin(g.bin)
	} else if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}
	return browser, func() {
		_ = browser.Close()
		l.Cleanup()
	}, nil
}
