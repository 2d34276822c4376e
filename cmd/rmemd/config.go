/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package main

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// config is the rmemd configuration file shape.
type config struct {
	NumNodes       int    `mapstructure:"num_nodes"`
	IONodes        int    `mapstructure:"io_nodes"`
	Self           int    `mapstructure:"self"`
	NameServerNode int    `mapstructure:"nameserver_node"`
	PoolSize       int    `mapstructure:"pool_size"`
	NBlocks        int    `mapstructure:"blocks"`
	ServerID       int    `mapstructure:"server_id"`
	NServers       int    `mapstructure:"num_servers"`
	LogLevel       string `mapstructure:"log_level"`
}

func defaultConfig() config {
	return config{
		NumNodes:       4,
		IONodes:        1,
		Self:           1,
		NameServerNode: 0,
		PoolSize:       16,
		NBlocks:        1024,
		ServerID:       0,
		NServers:       1,
		LogLevel:       "info",
	}
}

func loadConfig(path string) (config, *viper.Viper, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return cfg, nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return cfg, nil, fmt.Errorf("decoding config %q: %w", path, err)
	}

	return cfg, v, nil
}
