package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/config"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// getLogAsFile 获取设备日志文件。
// - 不包含 "://" 的输入视为本地文件路径（相对或绝对）。
// - file:// URI 直接使用其路径。
// - http:// 或 https:// URI 下载到临时文件。
// 返回文件路径、清理临时文件的函数以及错误。
func getLogAsFile(uriStr string) (filePath string, cleanup func(), err error) {
	cleanup = func() {}

	if !strings.Contains(uriStr, "://") {
		localPath, err := filepath.Abs(uriStr)
		if err != nil {
			return "", nil, fmt.Errorf("failed to get absolute path for '%s': %w", uriStr, err)
		}
		if _, err := os.Stat(localPath); err != nil {
			return "", nil, fmt.Errorf("local log '%s' (resolved to '%s'): %w", uriStr, localPath, err)
		}
		log.Printf("Using local device log: %s", localPath)
		return localPath, cleanup, nil
	}

	parsedURI, err := url.Parse(uriStr)
	if err != nil {
		return "", nil, fmt.Errorf("invalid log URI '%s': %w", uriStr, err)
	}

	switch parsedURI.Scheme {
	case "file":
		filePath = parsedURI.Path
		if filePath == "" {
			return "", nil, fmt.Errorf("invalid file path derived from URI '%s'", uriStr)
		}
		log.Printf("Using local device log: %s", filePath)
		return filePath, cleanup, nil

	case "http", "https":
		log.Printf("Downloading device log from URL: %s", uriStr)
		resp, err := http.Get(uriStr)
		if err != nil {
			return "", nil, fmt.Errorf("failed to download log from '%s': %w", uriStr, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", nil, fmt.Errorf("failed to download log from '%s': received status code %d", uriStr, resp.StatusCode)
		}

		tempFile, err := os.CreateTemp("", "devprof-*.csv")
		if err != nil {
			return "", nil, fmt.Errorf("failed to create temporary file for download: %w", err)
		}
		filePath = tempFile.Name()

		// 删除下载的临时文件
		cleanup = func() {
			log.Printf("Cleaning up temporary file: %s", filePath)
			if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
				log.Printf("Warning: failed to remove temporary file '%s': %v", filePath, err)
			}
		}

		_, err = io.Copy(tempFile, resp.Body)
		closeErr := tempFile.Close()
		if err != nil {
			cleanup()
			return "", nil, fmt.Errorf("failed to write downloaded content to temporary file '%s': %w", filePath, err)
		}
		if closeErr != nil {
			log.Printf("Warning: failed to close temporary file handle for '%s': %v", filePath, closeErr)
		}

		log.Printf("Downloaded device log to %s", filePath)
		return filePath, cleanup, nil

	default:
		return "", nil, fmt.Errorf("unsupported URI scheme '%s', only 'file://', 'http://', 'https://', or a plain local path are supported", parsedURI.Scheme)
	}
}

// readDeviceLog 获取并解析 uriStr 指向的日志。
func readDeviceLog(uriStr string, cfg *config.Config) (*trace.Log, error) {
	filePath, cleanup, err := getLogAsFile(uriStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get log file: %w", err)
	}
	defer cleanup()

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file '%s': %w", filePath, err)
	}
	defer file.Close()

	l, err := trace.ReadLog(file, cfg.Preamble())
	if err != nil {
		log.Printf("Error parsing device log '%s': %v", filePath, err)
		return nil, fmt.Errorf("failed to parse device log '%s': %w", filePath, err)
	}
	log.Printf("Parsed %d rows across %d devices from %s", l.Rows, len(l.Devices), filePath)
	return l, nil
}
