package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
)

// pprofSession 是一个由本服务器启动的 pprof 进程及其临时 profile 文件。
type pprofSession struct {
	process *os.Process
	cleanup func()
}

// 全局变量，用于跟踪由本服务器启动的 pprof 进程
var (
	runningPprofs = make(map[int]*pprofSession) // PID -> session
	pprofMutex    sync.Mutex
)

// handleOpenInteractivePprof 导出 profile 并在后台启动 'go tool pprof -http'。
func (a *app) handleOpenInteractivePprof(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	httpAddress, ok := args["http_address"].(string)
	if !ok || httpAddress == "" {
		httpAddress = ":8081" // 默认端口
		log.Printf("No http_address provided, using default: %s", httpAddress)
	}
	log.Printf("Handling open_interactive_pprof: URI=%v, Address=%s", args["log_uri"], httpAddress)

	if _, err := exec.LookPath("go"); err != nil {
		return nil, fmt.Errorf("'go' command not found in PATH, cannot start pprof")
	}

	// 注意：pprof 进程需要持续访问文件，清理推迟到会话结束
	profilePath, cleanup, err := a.exportTempProfile(ctx, args)
	if err != nil {
		return nil, err
	}

	cmdArgs := []string{"tool", "pprof", fmt.Sprintf("-http=%s", httpAddress)}
	if runtime.GOOS != "darwin" {
		// 只有 macOS 上自动打开浏览器
		cmdArgs = append(cmdArgs, "-no_browser")
	}
	cmdArgs = append(cmdArgs, profilePath)
	log.Printf("Preparing to execute command in background: go %s", strings.Join(cmdArgs, " "))

	// 进程生命周期独立于本次请求
	cmd := exec.Command("go", cmdArgs...)
	if err := cmd.Start(); err != nil {
		log.Printf("Error starting 'go tool pprof' in background: %v", err)
		cleanup()
		return nil, fmt.Errorf("failed to start 'go tool pprof': %w", err)
	}

	pid := cmd.Process.Pid
	pprofMutex.Lock()
	runningPprofs[pid] = &pprofSession{process: cmd.Process, cleanup: cleanup}
	pprofMutex.Unlock()

	log.Printf("Successfully started 'go tool pprof' in background with PID: %d", pid)

	resultText := fmt.Sprintf("已成功在后台启动 'go tool pprof' (PID: %d) 来分析 '%s'", pid, profilePath)
	resultText += fmt.Sprintf("，监听地址约为 %s。", httpAddress)
	resultText += "\n你可以使用 'disconnect_pprof_session' 工具并提供 PID 来终止此进程，临时 profile 文件会一并删除。"
	return textResult(resultText), nil
}

// handleDisconnectPprofSession 处理断开指定 pprof 会话的请求。
func handleDisconnectPprofSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	pidFloat, ok := args["pid"].(float64)
	if !ok {
		return nil, fmt.Errorf("missing or invalid required argument: pid (number)")
	}
	pid := int(pidFloat)
	if pid <= 0 {
		return nil, fmt.Errorf("invalid PID: %d", pid)
	}

	log.Printf("Handling disconnect_pprof_session for PID: %d", pid)

	pprofMutex.Lock()
	session, exists := runningPprofs[pid]
	if !exists {
		pprofMutex.Unlock()
		log.Printf("PID %d not found in running pprof sessions.", pid)
		return nil, fmt.Errorf("未找到 PID 为 %d 的正在运行的 pprof 会话", pid)
	}
	delete(runningPprofs, pid)
	pprofMutex.Unlock()

	if err := terminate(session.process, pid); err != nil {
		return nil, fmt.Errorf("尝试终止 PID %d 失败：%w", pid, err)
	}

	// 回收进程资源；被信号终止时的错误可以忽略
	_, err := session.process.Wait()
	if err != nil && !strings.Contains(err.Error(), "wait: no child processes") && !strings.Contains(err.Error(), "signal:") {
		log.Printf("Warning: Error waiting for process PID %d after signaling: %v", pid, err)
	}
	session.cleanup()

	resultText := fmt.Sprintf("已成功向 PID %d 发送终止信号。", pid)
	log.Println(resultText)
	return textResult(resultText), nil
}

// terminate 先发送 Interrupt，失败时改用 Kill。
func terminate(p *os.Process, pid int) error {
	log.Printf("Sending Interrupt signal to PID %d...", pid)
	err := p.Signal(os.Interrupt)
	if err == nil {
		return nil
	}
	log.Printf("Failed to send Interrupt to PID %d: %v. Trying Kill.", pid, err)
	if err := p.Signal(os.Kill); err != nil {
		log.Printf("Failed to send Kill to PID %d: %v", pid, err)
		return err
	}
	return nil
}

// stopAllPprofs 终止所有仍在运行的 pprof 进程并删除其临时文件。
func stopAllPprofs() {
	pprofMutex.Lock()
	sessions := runningPprofs
	runningPprofs = make(map[int]*pprofSession)
	pprofMutex.Unlock()

	if len(sessions) == 0 {
		log.Println("No running pprof processes to terminate.")
		return
	}

	log.Printf("Terminating %d pprof processes", len(sessions))
	var wg sync.WaitGroup
	for pid, s := range sessions {
		wg.Add(1)
		go func(pid int, s *pprofSession) {
			defer wg.Done()
			_ = terminate(s.process, pid)
			_, _ = s.process.Wait()
			s.cleanup()
		}(pid, s)
	}
	wg.Wait()
	log.Println("Cleanup finished.")
}

// setupSignalHandler 在收到 SIGINT/SIGTERM 时清理 pprof 进程，然后调用 onExit。
// 应在 main 中调用一次。
func setupSignalHandler(onExit func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		log.Printf("Received signal: %s. Cleaning up running pprof processes...", sig)
		stopAllPprofs()
		if onExit != nil {
			onExit()
		}
	}()
}
