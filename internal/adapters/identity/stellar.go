package identity

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes the identity CLI and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// StellarCLI implementa ports.IdentityProvider usando `stellar keys`.
type StellarCLI struct {
	binary  string
	network string
	run     Runner
}

// NewStellarCLI crea el adaptador. run nil usa os/exec.
func NewStellarCLI(binary, network string, run Runner) *StellarCLI {
	if binary == "" {
		binary = "stellar"
	}
	if run == nil {
		run = execRunner
	}
	return &StellarCLI{binary: binary, network: network, run: run}
}

func (s *StellarCLI) keys(ctx context.Context, args ...string) (string, error) {
	out, err := s.run(ctx, s.binary, append([]string{"keys"}, args...)...)
	if err != nil {
		return "", fmt.Errorf("%s keys %s: %w: %s", s.binary, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return string(out), nil
}

// Create genera la identidad y devuelve su dirección pública.
func (s *StellarCLI) Create(ctx context.Context, name string) (string, error) {
	if _, err := s.keys(ctx, "generate", name, "--network", s.network); err != nil {
		return "", fmt.Errorf("identity.Create: %w", err)
	}
	addr, err := s.Address(ctx, name)
	if err != nil {
		return "", fmt.Errorf("identity.Create: %w", err)
	}
	return addr, nil
}

// Fund pide fondos al friendbot de la red.
func (s *StellarCLI) Fund(ctx context.Context, name string) error {
	if _, err := s.keys(ctx, "fund", name, "--network", s.network); err != nil {
		return fmt.Errorf("identity.Fund: %w", err)
	}
	return nil
}

// List devuelve los nombres de identidad conocidos, uno por línea.
func (s *StellarCLI) List(ctx context.Context) ([]string, error) {
	out, err := s.keys(ctx, "ls")
	if err != nil {
		return nil, fmt.Errorf("identity.List: %w", err)
	}
	var names []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

// Address resuelve la dirección pública de una identidad.
func (s *StellarCLI) Address(ctx context.Context, name string) (string, error) {
	out, err := s.keys(ctx, "address", name)
	if err != nil {
		return "", fmt.Errorf("identity.Address: %w", err)
	}
	addr := strings.TrimSpace(out)
	if !strings.HasPrefix(addr, "G") {
		return "", fmt.Errorf("identity.Address: unexpected output %q", addr)
	}
	return addr, nil
}
