package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/urbasus/goslp/internal/slp"
)

// errDAAddrRequired is returned when register/deregister is invoked
// without --da, since both talk to one specific Directory Agent rather
// than converging over multicast.
var errDAAddrRequired = errors.New("--da flag is required")

func registerCmd() *cobra.Command {
	var (
		svcType  string
		attrList string
		lifetime uint16
	)

	cmd := &cobra.Command{
		Use:   "register <url>",
		Short: "Register a service URL with a Directory Agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if daAddr == "" {
				return errDAAddrRequired
			}

			msg := slp.Message{
				Header: newHeader(slp.FuncSrvReg, 0),
				SrvReg: &slp.SrvRegBody{
					URL:         slp.URLEntry{Lifetime: lifetime, URL: args[0]},
					ServiceType: svcType,
					ScopeList:   scopeList,
					AttrList:    attrList,
				},
			}

			reply, err := roundTrip(unicastDest(daAddr), msg, requestTimeout, 1)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}

			return printAck("register", args[0], reply)
		},
	}

	cmd.Flags().StringVar(&svcType, "type", "", "service type (required)")
	cmd.Flags().StringVar(&attrList, "attrs", "", "comma-separated attribute list, e.g. (port=80),(tls=false)")
	cmd.Flags().Uint16Var(&lifetime, "lifetime", 10800, "registration lifetime in seconds")
	return cmd
}

func deregisterCmd() *cobra.Command {
	var svcScope string

	cmd := &cobra.Command{
		Use:   "deregister <url>",
		Short: "Deregister a service URL from a Directory Agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if daAddr == "" {
				return errDAAddrRequired
			}

			msg := slp.Message{
				Header: newHeader(slp.FuncSrvDeReg, 0),
				SrvDeReg: &slp.SrvDeRegBody{
					ScopeList: svcScope,
					URL:       slp.URLEntry{URL: args[0]},
				},
			}

			reply, err := roundTrip(unicastDest(daAddr), msg, requestTimeout, 1)
			if err != nil {
				return fmt.Errorf("deregister: %w", err)
			}

			return printAck("deregister", args[0], reply)
		},
	}

	cmd.Flags().StringVar(&svcScope, "scope", "default", "comma-separated scope list")
	return cmd
}

// printAck reports the SrvAck error code from the first collected reply,
// or ErrNoReply if the DA never answered within the timeout.
func printAck(op, url string, replies []slp.Message) error {
	if len(replies) == 0 {
		return fmt.Errorf("%s %s: %w", op, url, ErrNoReply)
	}
	ack := replies[0].SrvAck
	if ack == nil {
		return fmt.Errorf("%s %s: unexpected reply function %s", op, url, replies[0].Header.Function)
	}
	if ack.ErrorCode != slp.ErrNone {
		return fmt.Errorf("%s %s: %s", op, url, ack.ErrorCode)
	}
	fmt.Printf("%s: %s ok\n", op, url)
	return nil
}
