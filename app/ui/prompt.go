// Package ui 提供命令行交互式选择，实现编排器的提问接口
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Prompt 基于行读取的命令行交互
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt 创建标准输入/输出上的交互器
func NewPrompt() *Prompt {
	return &Prompt{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewPromptWith 指定输入输出，测试用
func NewPromptWith(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Input 读取一行自由文本
func (p *Prompt) Input(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("读取输入失败: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// SelectIndex 打印带编号的选项并读取一个 1 起始的序号，返回下标
func (p *Prompt) SelectIndex(label string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("%s: 没有可用选项", label)
	}
	p.printOptions(label, options)
	for {
		line, err := p.Input("请输入序号")
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(options) {
			fmt.Fprintf(p.out, "无效的序号 %q，请输入 1-%d\n", line, len(options))
			continue
		}
		return n - 1, nil
	}
}

// SelectMulti 读取逗号分隔的多个序号，空输入表示全选
func (p *Prompt) SelectMulti(label string, options []string) ([]int, error) {
	if len(options) == 0 {
		return nil, fmt.Errorf("%s: 没有可用选项", label)
	}
	p.printOptions(label, options)
	for {
		line, err := p.Input("请输入序号（逗号分隔，留空为全部）")
		if err != nil {
			return nil, err
		}
		if line == "" {
			all := make([]int, len(options))
			for i := range options {
				all[i] = i
			}
			return all, nil
		}
		picks, err := parsePicks(line, len(options))
		if err != nil {
			fmt.Fprintf(p.out, "%v\n", err)
			continue
		}
		return picks, nil
	}
}

// Confirm 是/否确认，空输入视为是
func (p *Prompt) Confirm(label string) bool {
	line, err := p.Input(label + " [Y/n]")
	if err != nil {
		return false
	}
	switch strings.ToLower(line) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}

func (p *Prompt) printOptions(label string, options []string) {
	fmt.Fprintf(p.out, "%s:\n", label)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, opt)
	}
}

// parsePicks 解析逗号分隔的 1 起始序号列表，去重并保持输入顺序
func parsePicks(line string, max int) ([]int, error) {
	seen := make(map[int]bool)
	var picks []int
	for _, part := range strings.Split(line, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > max {
			return nil, fmt.Errorf("无效的序号 %q，请输入 1-%d", part, max)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		picks = append(picks, n-1)
	}
	if len(picks) == 0 {
		return nil, fmt.Errorf("没有解析到任何序号")
	}
	return picks, nil
}
