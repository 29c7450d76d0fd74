// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

//go:build integration

// Package integration provides end-to-end integration tests for plughost.
package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

// binDir holds the sample plugin builds shared by every test.
var binDir string

var _ = BeforeSuite(func() {
	var err error
	binDir, err = os.MkdirTemp("", "plughost-integration-*")
	Expect(err).NotTo(HaveOccurred())

	buildSample(filepath.Join(binDir, "sample-1.0"), "1.0")
	buildSample(filepath.Join(binDir, "sample-1.3"), "1.3")
})

var _ = AfterSuite(func() {
	if binDir != "" {
		_ = os.RemoveAll(binDir)
	}
})

// buildSample compiles plugins/sample with the given plugin version.
func buildSample(out, version string) {
	GinkgoHelper()
	cmd := exec.Command("go", "build", "-o", out, "-ldflags", "-X main.version="+version, "./plugins/sample")
	cmd.Dir = filepath.Join("..", "..")
	cmd.Stdout = GinkgoWriter
	cmd.Stderr = GinkgoWriter
	Expect(cmd.Run()).To(Succeed())
}

// install copies a sample build to dst.
func install(src, dst string) {
	GinkgoHelper()
	data, err := os.ReadFile(src)
	Expect(err).NotTo(HaveOccurred())
	Expect(os.MkdirAll(filepath.Dir(dst), 0o750)).To(Succeed())
	Expect(os.WriteFile(dst, data, 0o700)).To(Succeed()) //nolint:gosec // plugin executables must be runnable
}
