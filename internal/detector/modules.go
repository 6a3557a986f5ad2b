package detector

import (
	"fmt"
	"log/slog"
	"strings"
)

// ModuleInfo captures kernel module metadata and requirement status.
type ModuleInfo struct {
	Name        string
	Required    bool
	Description string
}

var egressModules = []ModuleInfo{
	{
		Name:        "sch_tbf",
		Required:    true,
		Description: "Token bucket filter qdisc for rate limiting",
	},
	{
		Name:        "sch_netem",
		Required:    true,
		Description: "Network emulator qdisc for fixed delay",
	},
}

var ingressModules = []ModuleInfo{
	{
		Name:        "ifb",
		Required:    true,
		Description: "Intermediate Functional Block for ingress shaping",
	},
	{
		Name:        "act_mirred",
		Required:    true,
		Description: "Mirred action to redirect ingress traffic to the ifb",
	},
	{
		Name:        "cls_u32",
		Required:    true,
		Description: "u32 classifier for the match-all redirect filter",
	},
	{
		Name:        "sch_ingress",
		Required:    false,
		Description: "Ingress qdisc, usually built in",
	},
}

// RequiredModules enumerates the modules shaping depends on.
func RequiredModules(ingress bool) []ModuleInfo {
	modules := append([]ModuleInfo(nil), egressModules...)
	if ingress {
		modules = append(modules, ingressModules...)
	}
	return modules
}

// ValidateKernelModules checks modules on the running host.
func ValidateKernelModules(logger *slog.Logger, ingress bool) error {
	return DefaultProbe().ValidateKernelModules(logger, ingress)
}

// ValidateKernelModules ensures required kernel modules are loaded, attempting to
// modprobe missing modules when possible.
func (p Probe) ValidateKernelModules(logger *slog.Logger, ingress bool) error {
	var errs []string

	for _, module := range RequiredModules(ingress) {
		if err := p.ensureModule(module, logger); err != nil {
			if module.Required {
				errs = append(errs, fmt.Sprintf("%s: %v", module.Name, err))
			} else if logger != nil {
				logger.Warn("optional kernel module not available",
					slog.String("module", module.Name),
					slog.String("description", module.Description),
					slog.String("error", err.Error()))
			}
			continue
		}

		if logger != nil {
			logger.Info("kernel module ready",
				slog.String("module", module.Name),
				slog.String("description", module.Description))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("required kernel modules missing: %s", strings.Join(errs, ", "))
	}
	return nil
}

// ensureModule accepts a module that is loaded or that modprobe reports as
// available. Built-in modules have no /sys/module entry without parameters.
func (p Probe) ensureModule(module ModuleInfo, logger *slog.Logger) error {
	if p.ModuleLoaded != nil && p.ModuleLoaded(module.Name) {
		return nil
	}

	if logger != nil {
		logger.Debug("attempting to load kernel module", slog.String("module", module.Name))
	}

	output, err := p.modprobe(module.Name)
	if err != nil {
		return fmt.Errorf("modprobe failed: %w (output: %s)", err, strings.TrimSpace(output))
	}
	return nil
}
