package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/cyberinferno/go-netengine/perfmonitor"
)

func printReport(e *env, pm *perfmonitor.PerformanceMonitor, size int) {
	elapsed := pm.Elapsed()
	bps, mps := pm.Throughput()
	messages := pm.Messages()
	if messages == 0 && size > 0 {
		messages = pm.Bytes() / int64(size)
	}

	e.println("Errors:", pm.Errors())
	e.println()
	e.println("Round-trip time:", color.CyanString(formatPeriod(elapsed)))
	e.println("Total data:", color.CyanString(formatSize(pm.Bytes())))
	e.println("Total messages:", color.CyanString("%d", messages))
	e.println("Data throughput:", color.CyanString(formatSize(int64(bps))+"/s"))
	if messages > 0 {
		e.println("Message latency:", color.CyanString(formatPeriod(elapsed/time.Duration(messages))))
		e.println("Message throughput:", color.CyanString("%d msg/s", int64(mps)))
	}
}

func formatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d bytes", b)
	}

	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.3f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatPeriod(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.3f s", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.3f ms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.3f mcs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%d ns", d.Nanoseconds())
	}
}
