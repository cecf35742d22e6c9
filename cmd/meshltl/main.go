// Command meshltl runs a single mesh node: it loads a runtime config, opens
// the configured bearer, and logs every access and control message
// delivered to it. Virtual bearer channels exist only inside one process,
// so separate meshltl processes reach each other only over the advertising
// bearer.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	_ "github.com/samsamfire/meshltl/pkg/bearer/advertising"
	_ "github.com/samsamfire/meshltl/pkg/bearer/virtual"
	"github.com/samsamfire/meshltl/pkg/ltl"
	"github.com/samsamfire/meshltl/pkg/meshcfg"
	"github.com/samsamfire/meshltl/pkg/meshnet"
)

const defaultConfigPath = "meshltl.ini"

func main() {
	log.SetLevel(log.InfoLevel)

	configPath := flag.String("c", defaultConfigPath, "path to node config (.ini)")
	sendTo := flag.Int("send-to", 0, "unicast address to send a test access message to, 0 to only listen")
	flag.Parse()

	cfg, err := meshcfg.Load(*configPath)
	if err != nil {
		fmt.Printf("could not load config %v : %v\n", *configPath, err)
		os.Exit(1)
	}

	callbacks := ltl.Callbacks{
		OnAccessDelivered: func(msg ltl.AccessMessage) {
			log.WithFields(log.Fields{"src": msg.Src, "dst": msg.Dst}).Infof("access delivered: %q", msg.Payload)
		},
		OnControlDelivered: func(msg ltl.ControlMessage) {
			log.WithFields(log.Fields{"src": msg.Src, "opcode": msg.Opcode}).Infof("control delivered: %q", msg.Payload)
		},
		OnIncompleteTimerExpired: func(src ltl.Address) {
			log.WithField("src", src).Warn("incomplete timer expired")
		},
	}

	net := meshnet.New(cfg.Node.Address, callbacks, nil)
	if err := net.Connect(cfg.Bearer.Kind, cfg.Bearer.Channel); err != nil {
		fmt.Printf("could not connect to bearer %v : %v\n", cfg.Bearer.Kind, err)
		os.Exit(1)
	}
	defer net.Disconnect()

	if *sendTo != 0 {
		_, err := net.Facade().SendAccess(ltl.Address(*sendTo), []byte("hello from meshltl"), true, 0x00, false)
		if err != nil {
			log.WithError(err).Error("send failed")
		}
	}

	select {}
}
