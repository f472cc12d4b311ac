package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/form3tech-oss/pact-broker-client/internal/app/configuration"
	"github.com/form3tech-oss/pact-broker-client/pkg/pactbroker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

type rootFlags struct {
	brokerBaseURL string
	username      string
	password      string
	token         string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "pact-broker",
		Short:         "Client for a Pact contract-testing broker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.brokerBaseURL, "broker-base-url", "b", "", "base URL of the Pact broker (or PACT_BROKER_BASE_URL)")
	cmd.PersistentFlags().StringVarP(&flags.username, "broker-username", "u", "", "broker basic auth username (or PACT_BROKER_USERNAME)")
	cmd.PersistentFlags().StringVarP(&flags.password, "broker-password", "p", "", "broker basic auth password (or PACT_BROKER_PASSWORD)")
	cmd.PersistentFlags().StringVarP(&flags.token, "broker-token", "k", "", "broker bearer token (or PACT_BROKER_TOKEN)")

	cmd.AddCommand(newPublishCmd(flags))
	cmd.AddCommand(newListConsumersCmd(flags))
	cmd.AddCommand(newCreateVersionTagCmd(flags))
	return cmd
}

func newClient(flags *rootFlags) (*pactbroker.Client, error) {
	config, err := configuration.NewFromEnv()
	if err != nil {
		return nil, err
	}
	if flags.brokerBaseURL != "" {
		config.BrokerBaseURL = flags.brokerBaseURL
	}
	if flags.username != "" {
		config.Username = flags.username
	}
	if flags.password != "" {
		config.Password = flags.password
	}
	if flags.token != "" {
		config.Token = flags.token
	}
	if config.BrokerBaseURL == "" {
		return nil, fmt.Errorf("no broker base URL configured, set --broker-base-url or PACT_BROKER_BASE_URL")
	}
	return pactbroker.New(config), nil
}

func newPublishCmd(flags *rootFlags) *cobra.Command {
	var version string
	var tags []string

	cmd := &cobra.Command{
		Use:   "publish PACT_FILE [PACT_FILE...]",
		Short: "Publish pact files to the broker, tagged with the consumer version",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			for _, pactFile := range args {
				if err := client.UploadPact(cmd.Context(), pactFile, version, tags); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&version, "consumer-app-version", "a", "", "consumer application version")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "consumer version tag (repeatable)")
	_ = cmd.MarkFlagRequired("consumer-app-version")
	return cmd
}

func newListConsumersCmd(flags *rootFlags) *cobra.Command {
	var provider, tag string

	cmd := &cobra.Command{
		Use:   "list-consumers",
		Short: "List consumers with a pact for a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}

			var consumers []pactbroker.Consumer
			if tag == "" {
				consumers, err = client.ConsumersForProvider(cmd.Context(), provider)
			} else {
				consumers, err = client.ConsumersForProviderWithTag(cmd.Context(), provider, tag)
			}
			if err != nil {
				return err
			}

			for _, consumer := range consumers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", consumer.Name, consumer.PactURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider name")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "consumer version tag")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func newCreateVersionTagCmd(flags *rootFlags) *cobra.Command {
	var pacticipant, version string
	var tags []string

	cmd := &cobra.Command{
		Use:   "create-version-tag",
		Short: "Tag a pacticipant version",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			for _, tag := range tags {
				if err := client.TagPacticipantVersion(cmd.Context(), pacticipant, version, tag); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pacticipant, "pacticipant", "", "pacticipant name")
	cmd.Flags().StringVarP(&version, "version", "a", "", "pacticipant version")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag to apply (repeatable)")
	_ = cmd.MarkFlagRequired("pacticipant")
	_ = cmd.MarkFlagRequired("version")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}
