package main

import (
	"github.com/spf13/cobra"
)

var cliName = "toolkit"

var rootCmd = &cobra.Command{
	Use:   cliName,
	Short: "toolkit is a CLI for raffle bridge operators",
	Long:  `toolkit is a CLI for raffle bridge operators executing mundane tasks`,
	Args:  cobra.ExactArgs(0),
}

func main() {
	rootCmd.Execute() //nolint
}

func init() {
	rootCmd.AddCommand(scCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(gasPriceBumperCmd)
	rootCmd.AddCommand(mirrorCmd)

	scCmd.PersistentFlags().String("contract-address", "", "the raffles contract address")
	scCmd.PersistentFlags().Int("chain-id", 80001, "chain id")
	scCmd.PersistentFlags().String("privatekey", "", "the private key used to make the contract calls")
	scCmd.PersistentFlags().String("gateway", "", "URL of an Ethereum node API (i.e: Alchemy/Infura)")
	scCmd.AddCommand(raffleShowCmd)
	scCmd.AddCommand(raffleCompleteCmd)

	walletCreateCmd.Flags().String("filename", "privatekey.hex", "Filename to store hex representation of private key")
	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletAddressCmd)

	gasPriceBumperCmd.PersistentFlags().String("privatekey", "", "the private key used to make the contract calls")
	gasPriceBumperCmd.PersistentFlags().String("gateway", "", "URL of an Ethereum node API (i.e: Alchemy/Infura)")

	mirrorCmd.PersistentFlags().String("db", "mirror.db", "path of the mirror database")
	mirrorCmd.AddCommand(mirrorCallbacksCmd)
	mirrorCmd.AddCommand(mirrorRaffleCmd)
	mirrorCmd.AddCommand(mirrorLotteryCmd)
}
