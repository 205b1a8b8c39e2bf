package conversecmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	conversecmder "github.com/papercomputeco/converse/cmd/converse"
)

var _ = Describe("NewConverseCmd", func() {
	It("registers every subcommand", func() {
		cmd := conversecmder.NewConverseCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "ask", "chat", "structured", "models", "config", "version"))
	})

	It("has global debug and config-dir flags", func() {
		cmd := conversecmder.NewConverseCmd()

		debug := cmd.PersistentFlags().Lookup("debug")
		Expect(debug).NotTo(BeNil())
		Expect(debug.Shorthand).To(Equal("d"))
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	Describe(".env loading", func() {
		var (
			tmpDir  string
			origDir string
		)

		BeforeEach(func() {
			var err error
			tmpDir, err = os.MkdirTemp("", "converse-root-test-*")
			Expect(err).NotTo(HaveOccurred())
			origDir, err = os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(tmpDir)).To(Succeed())

			// Registers a restore, then unsets so godotenv may fill it.
			GinkgoT().Setenv("CONVERSE_BEDROCK_MODEL", "")
			Expect(os.Unsetenv("CONVERSE_BEDROCK_MODEL")).To(Succeed())
		})

		AfterEach(func() {
			Expect(os.Chdir(origDir)).To(Succeed())
			os.RemoveAll(tmpDir)
		})

		It("reads variables from .env in the working directory before running", func() {
			Expect(os.WriteFile(".env", []byte("CONVERSE_BEDROCK_MODEL=from-dotenv\n"), 0o600)).To(Succeed())

			var out bytes.Buffer
			cmd := conversecmder.NewConverseCmd()
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"config", "list", "--config-dir", filepath.Join(tmpDir, "conf")})
			Expect(cmd.Execute()).To(Succeed())

			Expect(os.Getenv("CONVERSE_BEDROCK_MODEL")).To(Equal("from-dotenv"))
		})

		It("runs without a .env file", func() {
			cmd := conversecmder.NewConverseCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs([]string{"version"})
			Expect(cmd.Execute()).To(Succeed())
		})
	})
})
