// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/component"
	"github.com/corda/corda-runtime-os-sub044/pkg/config"
	"github.com/corda/corda-runtime-os-sub044/pkg/constants"
	"github.com/corda/corda-runtime-os-sub044/pkg/lifecycle"
	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
)

const (
	messagingName = "messaging"
	cryptoName    = "crypto"
	flowName      = "flow"
)

func defaultConfig() map[string]map[string]any {
	return map[string]map[string]any{
		messagingName: {"bootstrapServers": "localhost:9092"},
		cryptoName:    {"hsm": "soft", "keySize": 256},
	}
}

// service is the implementation every demo component activates.
type service struct {
	logger *zap.SugaredLogger
	deps   []string
}

func (s *service) Close() error {
	s.logger.Info("Service closed")

	return nil
}

func (s *service) Dependencies() []string {
	return s.deps
}

type cryptoConfig struct {
	HSM     string `json:"hsm"`
	KeySize int    `json:"keySize"`
}

// demo is a flow engine that needs messaging and a configured crypto service.
type demo struct {
	messaging *component.Component[*service]
	crypto    *component.Component[*service]
	flow      *component.Component[*service]
}

func newDemo(factory *lifecycle.CoordinatorFactory, readService *config.ReadService) (*demo, error) {
	messaging, err := component.New(factory, messagingName, []string{config.ReadServiceName},
		func(context.Context) (*service, error) {
			return &service{logger: logger.For(messagingName)}, nil
		},
		component.WithRetryBackoff(constants.DefaultRetryInitial, constants.DefaultRetryMax))
	if err != nil {
		return nil, err
	}

	crypto, err := component.NewConfigurable(factory, cryptoName, nil, readService.Named(cryptoName), []string{cryptoName},
		func(_ context.Context, cfg map[string]config.Snapshot) (*service, error) {
			var cc cryptoConfig
			if err := cfg[cryptoName].Decode(&cc); err != nil {
				return nil, err
			}

			if cc.HSM == "" {
				return nil, errors.New("no HSM configured")
			}

			log := logger.For(cryptoName)
			log.Infow("Crypto service configured", "hsm", cc.HSM, "keySize", cc.KeySize)

			return &service{logger: log, deps: []string{messagingName}}, nil
		},
		component.WithRetryBackoff(constants.DefaultRetryInitial, constants.DefaultRetryMax))
	if err != nil {
		return nil, err
	}

	flow, err := component.New(factory, flowName, []string{messagingName, cryptoName},
		func(context.Context) (*service, error) {
			return &service{logger: logger.For(flowName)}, nil
		})
	if err != nil {
		return nil, err
	}

	return &demo{messaging: messaging, crypto: crypto, flow: flow}, nil
}

func (d *demo) Start() {
	d.messaging.Start()
	d.crypto.Start()
	d.flow.Start()
}

func (d *demo) Close() {
	d.flow.Close()
	d.crypto.Close()
	d.messaging.Close()
}

func (d *demo) String() string {
	return fmt.Sprintf("messaging=%s crypto=%s flow=%s", d.messaging.Status(), d.crypto.Status(), d.flow.Status())
}
