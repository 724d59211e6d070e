package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/nonce/impl"
	"github.com/fairraffle/go-rafflebridge/pkg/registry/impl/ethereum"
	"github.com/fairraffle/go-rafflebridge/pkg/wallet"
)

var scCmd = &cobra.Command{
	Use:   "sc",
	Short: "Offers smart contract calls",
	Long:  `Offers smart contract calls to the raffles contract`,
	Args:  cobra.ExactArgs(1),
}

var raffleShowCmd = &cobra.Command{
	Use:   "raffle",
	Short: "Reads a raffle from the raffles contract",
	Long:  `Reads a raffle from the raffles contract by its numeric id`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contractAddress, err := cmd.Flags().GetString("contract-address")
		if err != nil {
			return errors.New("failed to parse contract-address")
		}
		gatewayEndpoint, err := cmd.Flags().GetString("gateway")
		if err != nil {
			return errors.New("failed to parse gateway")
		}

		raffleID, ok := new(big.Int).SetString(args[0], 10)
		if !ok {
			return fmt.Errorf("invalid raffle id: %s", args[0])
		}

		conn, err := ethclient.Dial(gatewayEndpoint)
		if err != nil {
			return fmt.Errorf("dial: %s", err)
		}

		reader, err := ethereum.NewReader(conn, common.HexToAddress(contractAddress))
		if err != nil {
			return fmt.Errorf("creating raffles reader: %s", err)
		}

		data, err := reader.GetRaffle(context.Background(), raffleID)
		if err != nil {
			return fmt.Errorf("get raffle: %s", err)
		}

		state, err := bridge.RaffleStateFromOrdinal(data.RaffleState)
		if err != nil {
			return fmt.Errorf("raffle state from ordinal: %s", err)
		}
		raffleType, err := bridge.RaffleTypeFromOrdinal(data.RaffleType)
		if err != nil {
			return fmt.Errorf("raffle type from ordinal: %s", err)
		}

		fmt.Printf("Asset contract:       %s\n", data.AssetContract)
		fmt.Printf("Owner:                %s\n", data.RaffleOwner)
		fmt.Printf("Winner:               %s\n", data.RaffleWinner)
		fmt.Printf("State:                %s\n", state)
		fmt.Printf("Type:                 %s\n", raffleType)
		fmt.Printf("Currency:             %s\n", data.Currency)
		fmt.Printf("Nft id or amount:     %s\n", data.NftIdOrAmount)
		fmt.Printf("Price per ticket:     %s\n", data.PricePerTicket)
		fmt.Printf("End timestamp:        %s\n", data.EndTimestamp)
		fmt.Printf("Tickets sold:         %s\n", data.TicketsSold)
		fmt.Printf("Number of tickets:    %s\n", data.NumberOfTickets)
		fmt.Printf("Minimum tickets sold: %s\n", data.MinimumTicketsSold)

		return nil
	},
}

var raffleCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Do a completeRaffle call to the raffles contract",
	Long:  `Do a completeRaffle call to the raffles contract`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contractAddress, err := cmd.Flags().GetString("contract-address")
		if err != nil {
			return errors.New("failed to parse contract-address")
		}
		chainID, err := cmd.Flags().GetInt("chain-id")
		if err != nil {
			return errors.New("failed to parse chain-id")
		}
		privateKey, err := cmd.Flags().GetString("privatekey")
		if err != nil {
			return errors.New("failed to parse privatekey")
		}
		gatewayEndpoint, err := cmd.Flags().GetString("gateway")
		if err != nil {
			return errors.New("failed to parse gateway")
		}

		raffleID, ok := new(big.Int).SetString(args[0], 10)
		if !ok {
			return fmt.Errorf("invalid raffle id: %s", args[0])
		}

		conn, err := ethclient.Dial(gatewayEndpoint)
		if err != nil {
			return fmt.Errorf("dial: %s", err)
		}

		w, err := wallet.NewWallet(privateKey)
		if err != nil {
			return fmt.Errorf("new wallet: %s", err)
		}

		client, err := ethereum.NewClient(
			conn,
			bridge.ChainID(chainID),
			common.HexToAddress(contractAddress),
			w,
			impl.NewSimpleTracker(w, conn),
		)
		if err != nil {
			return fmt.Errorf("creating ethereum client: %s", err)
		}

		tx, err := client.CompleteRaffle(context.Background(), raffleID)
		if err != nil {
			return fmt.Errorf("complete raffle: %s", err)
		}

		fmt.Printf("%s\n\n", tx.Hash())
		return nil
	},
}
