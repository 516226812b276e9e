package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/urbasus/goslp/internal/slp"
)

// --- findsrvs ---

func findSrvsCmd() *cobra.Command {
	var predicate string

	cmd := &cobra.Command{
		Use:   "findsrvs <service-type>",
		Short: "Discover service URLs of a given type",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			msg := slp.Message{
				Header: newHeader(slp.FuncSrvRqst, slp.FlagMulticast),
				SrvRqst: &slp.SrvRqstBody{
					ServiceType: args[0],
					ScopeList:   scopeList,
					Predicate:   predicate,
				},
			}

			replies, err := roundTrip(multicastDest(), msg, requestTimeout, 0)
			if err != nil {
				return fmt.Errorf("findsrvs: %w", err)
			}

			urls := collectURLs(replies)
			out, err := formatURLs(urls, outputFormat)
			if err != nil {
				return fmt.Errorf("format results: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&predicate, "predicate", "", "LDAPv3 attribute predicate (RFC 2608 Appendix A)")
	return cmd
}

func collectURLs(replies []slp.Message) []slp.URLEntry {
	var urls []slp.URLEntry
	for _, reply := range replies {
		if reply.SrvRply == nil {
			continue
		}
		if reply.SrvRply.ErrorCode != slp.ErrNone {
			continue
		}
		urls = append(urls, reply.SrvRply.URLs...)
	}
	return urls
}

// --- findattrs ---

func findAttrsCmd() *cobra.Command {
	var tagList string

	cmd := &cobra.Command{
		Use:   "findattrs <url-or-service-type>",
		Short: "Discover attributes of a service URL or service type",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			msg := slp.Message{
				Header: newHeader(slp.FuncAttrRqst, slp.FlagMulticast),
				AttrRqst: &slp.AttrRqstBody{
					URLOrType: args[0],
					ScopeList: scopeList,
					TagList:   tagList,
				},
			}

			replies, err := roundTrip(multicastDest(), msg, requestTimeout, 0)
			if err != nil {
				return fmt.Errorf("findattrs: %w", err)
			}

			var attrLists []string
			for _, reply := range replies {
				if reply.AttrRply == nil || reply.AttrRply.ErrorCode != slp.ErrNone {
					continue
				}
				if reply.AttrRply.AttrList != "" {
					attrLists = append(attrLists, reply.AttrRply.AttrList)
				}
			}

			out, err := formatAttrs(attrLists, outputFormat)
			if err != nil {
				return fmt.Errorf("format results: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&tagList, "tags", "", "comma-separated attribute tags to filter to")
	return cmd
}

// --- findsrvtypes ---

func findSrvTypesCmd() *cobra.Command {
	var namingAuthority string

	cmd := &cobra.Command{
		Use:   "findsrvtypes",
		Short: "Discover known service types",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			msg := slp.Message{
				Header: newHeader(slp.FuncSrvTypeRqst, slp.FlagMulticast),
				SrvTypeRqst: &slp.SrvTypeRqstBody{
					NamingAuthority: namingAuthority,
					ScopeList:       scopeList,
				},
			}

			replies, err := roundTrip(multicastDest(), msg, requestTimeout, 0)
			if err != nil {
				return fmt.Errorf("findsrvtypes: %w", err)
			}

			seen := make(map[string]struct{})
			var types []string
			for _, reply := range replies {
				if reply.SrvTypeRply == nil || reply.SrvTypeRply.ErrorCode != slp.ErrNone {
					continue
				}
				for _, t := range splitCommaList(reply.SrvTypeRply.SrvTypeList) {
					if _, ok := seen[t]; ok {
						continue
					}
					seen[t] = struct{}{}
					types = append(types, t)
				}
			}

			out, err := formatSrvTypes(types, outputFormat)
			if err != nil {
				return fmt.Errorf("format results: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&namingAuthority, "naming-authority", "", "restrict to one naming authority ('*' for all)")
	return cmd
}
