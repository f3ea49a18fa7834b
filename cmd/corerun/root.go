// Licensed to LinDB under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. LinDB licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	currentDir     = "./"
	defaultCfgFile = currentDir + "corerun.toml"
	logFileName    = "corerun.log"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "corerun",
	Short: "Concurrency/lifecycle runtime core: task scheduler, component container, DNS resolver",
}

func init() {
	runCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		fmt.Sprintf("config file path, default is %s", defaultCfgFile))
	runOnceCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		fmt.Sprintf("config file path, default is %s", defaultCfgFile))

	rootCmd.AddCommand(runCmd, runOnceCmd, initConfigCmd)
}

func checkExistenceOf(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("corerun: refusing to overwrite existing config file %q", path)
	}
	return nil
}
