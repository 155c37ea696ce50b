package pwm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultSysfsRoot = "/sys/class/pwm"

// SysfsProvider acquires channels from the Linux sysfs PWM interface.
// Specifiers name a chip and channel number, e.g. "pwmchip0/2".
type SysfsProvider struct {
	// Root overrides /sys/class/pwm, used by tests.
	Root string
}

func (p *SysfsProvider) root() string {
	if p.Root != "" {
		return p.Root
	}
	return defaultSysfsRoot
}

// Acquire exports the channel if needed and returns it. A missing chip
// directory reports ErrDeferred: the controller may simply not have been
// probed yet.
func (p *SysfsProvider) Acquire(spec string) (Channel, error) {
	chip, channel, err := parseSysfsSpec(spec)
	if err != nil {
		return nil, err
	}

	chipPath := filepath.Join(p.root(), chip)
	if _, err := os.Stat(chipPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrDeferred, chipPath)
	}

	c := &sysfsChannel{
		chip:     chip,
		channel:  channel,
		chipPath: chipPath,
		basePath: filepath.Join(chipPath, fmt.Sprintf("pwm%d", channel)),
	}

	if _, err := os.Stat(c.basePath); os.IsNotExist(err) {
		exportPath := filepath.Join(chipPath, "export")
		if err := os.WriteFile(exportPath, []byte(strconv.Itoa(channel)), 0o644); err != nil {
			// The kernel reports busy when the channel is already
			// exported by someone else racing us.
			if !strings.Contains(err.Error(), "device or resource busy") {
				return nil, fmt.Errorf("failed to export %s/pwm%d: %w", chip, channel, err)
			}
		}
	}
	if _, err := os.Stat(c.basePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s/pwm%d not present after export", chip, channel)
	}

	return c, nil
}

func parseSysfsSpec(spec string) (chip string, channel int, err error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid sysfs pwm specifier %q, want chip/channel", spec)
	}
	channel, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid pwm channel number in %q: %w", spec, err)
	}
	return parts[0], channel, nil
}

type sysfsChannel struct {
	chip     string
	channel  int
	chipPath string
	basePath string
}

func (c *sysfsChannel) Configure(dutyNs, periodNs int64) error {
	// Period first: the kernel rejects a duty_cycle larger than the
	// currently configured period.
	if err := c.writeSysfs("period", strconv.FormatInt(periodNs, 10)); err != nil {
		return err
	}
	return c.writeSysfs("duty_cycle", strconv.FormatInt(dutyNs, 10))
}

func (c *sysfsChannel) Enable() error {
	return c.writeSysfs("enable", "1")
}

func (c *sysfsChannel) Disable() error {
	return c.writeSysfs("enable", "0")
}

// Period reads back the configured period, 0 when unreadable.
func (c *sysfsChannel) Period() int64 {
	data, err := os.ReadFile(filepath.Join(c.basePath, "period"))
	if err != nil {
		return 0
	}
	p, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return p
}

func (c *sysfsChannel) Close() error {
	c.writeSysfs("duty_cycle", "0")
	if err := c.writeSysfs("enable", "0"); err != nil {
		return err
	}
	// Unexport is best-effort, another consumer may hold the channel.
	unexportPath := filepath.Join(c.chipPath, "unexport")
	os.WriteFile(unexportPath, []byte(strconv.Itoa(c.channel)), 0o644)
	return nil
}

func (c *sysfsChannel) writeSysfs(filename, value string) error {
	path := filepath.Join(c.basePath, filename)
	return os.WriteFile(path, []byte(value), 0o644)
}
