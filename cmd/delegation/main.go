package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theupdateframework/delegation/pkg/passphrase"
)

const configDirName = ".delegation"

var (
	verbose     bool
	trustDir    string
	configFile  string
	signingRole string
	outDir      string
	rootPath    string
	metadataURL string
	targetsURL  string
	keySources  []string
	signAll     bool

	configPath     string
	configFileName = "config"
	configFileExt  = "json"
	retriever      passphrase.Retriever
	mainViper      = viper.New()
)

func init() {
	retriever = getPassphraseRetriever()
}

func parseConfig() {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetOutput(os.Stderr)
	}

	if trustDir == "" {
		homeDir, err := homedir.Dir()
		if err != nil {
			fatalf("cannot get current user home directory: %v", err)
		}
		if homeDir == "" {
			fatalf("cannot get current user home directory")
		}
		trustDir = filepath.Join(homeDir, configDirName)
		logrus.Debugf("no trust directory provided, using default: %s", trustDir)
	} else {
		logrus.Debugf("trust directory provided: %s", trustDir)
	}

	if configFile != "" {
		configFileExt = strings.TrimPrefix(filepath.Ext(configFile), ".")
		configFileName = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
		configPath = filepath.Dir(configFile)
	} else {
		configPath = trustDir
	}

	mainViper.SetConfigName(configFileName)
	mainViper.SetConfigType(configFileExt)
	mainViper.AddConfigPath(configPath)

	if err := mainViper.ReadInConfig(); err != nil {
		logrus.Debugf("configuration file not found, using defaults")
		if !os.IsNotExist(err) {
			fatalf("fatal error config file: %v", err)
		}
	}
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "delegation",
		Short: "delegation edits TUF delegated-targets metadata offline.",
		Long:  "delegation creates, signs, and rewires TUF delegated-targets roles and their snapshot/timestamp without running a signing service.",
	}

	rootCmd.PersistentFlags().StringVarP(&trustDir, "trustdir", "d", "", "directory where trusted metadata and local keys are cached")
	rootCmd.PersistentFlags().StringVarP(&configFile, "configFile", "c", "", "path to the configuration file to use")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&signingRole, "signing-role", "", "role whose metadata this invocation edits and signs")

	for _, cmd := range []*cobra.Command{
		cmdCreateRole,
		cmdAddRole,
		cmdAddKey,
		cmdRemoveKey,
		cmdRemove,
		cmdUpdateDelegatedTargets,
		cmdUpdate,
	} {
		rootCmd.AddCommand(cmd)
	}

	if err := rootCmd.Execute(); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "* fatal: "+format+"\n", args...)
	os.Exit(1)
}

func getPassphraseRetriever() passphrase.Retriever {
	baseRetriever := passphrase.PromptRetriever()
	env := map[string]string{
		"root":      os.Getenv("DELEGATION_ROOT_PASSPHRASE"),
		"targets":   os.Getenv("DELEGATION_TARGETS_PASSPHRASE"),
		"snapshot":  os.Getenv("DELEGATION_SNAPSHOT_PASSPHRASE"),
		"timestamp": os.Getenv("DELEGATION_TIMESTAMP_PASSPHRASE"),
	}

	return func(keyName, alias string, createNew bool, numAttempts int) (string, bool, error) {
		if v := env[alias]; v != "" {
			return v, numAttempts > 1, nil
		}
		return baseRetriever(keyName, alias, createNew, numAttempts)
	}
}
