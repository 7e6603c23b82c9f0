// Package bank предоставляет примитив перевода средств с предварительно
// выданным разрешением (allowance). Леджер рассматривает его как внешнюю
// инфраструктуру: списание у подписчика возможно только в пределах
// разрешённой им суммы.
package bank

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds возвращается, когда баланса плательщика не хватает.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInsufficientAllowance возвращается, когда разрешённая сумма меньше требуемой.
var ErrInsufficientAllowance = errors.New("insufficient allowance")

// Bank описывает перевод средств между счетами в рамках одного расчётного токена.
type Bank interface {
	// TransferFrom переводит amount от from к to, уменьшая allowance отправителя.
	TransferFrom(ctx context.Context, token, from, to string, amount decimal.Decimal) error
	// Allowance возвращает остаток разрешения владельца на списания.
	Allowance(ctx context.Context, token, owner string) (decimal.Decimal, error)
	// BalanceOf возвращает баланс владельца.
	BalanceOf(ctx context.Context, token, owner string) (decimal.Decimal, error)
}

type account struct {
	balance   decimal.Decimal
	allowance decimal.Decimal
}

// InMemoryBank реализация Bank в памяти. Используется сервисом в режиме
// локальной разработки и тестами. Все операции сериализованы мьютексом.
type InMemoryBank struct {
	mu       sync.Mutex
	accounts map[string]map[string]*account // token -> owner -> account
}

// NewInMemoryBank создает пустой InMemoryBank.
func NewInMemoryBank() *InMemoryBank {
	return &InMemoryBank{accounts: make(map[string]map[string]*account)}
}

func (b *InMemoryBank) account(token, owner string) *account {
	owners, ok := b.accounts[token]
	if !ok {
		owners = make(map[string]*account)
		b.accounts[token] = owners
	}
	acc, ok := owners[owner]
	if !ok {
		acc = &account{balance: decimal.Zero, allowance: decimal.Zero}
		owners[owner] = acc
	}
	return acc
}

// Mint зачисляет amount на счёт владельца.
func (b *InMemoryBank) Mint(token, owner string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(token, owner)
	acc.balance = acc.balance.Add(amount)
}

// Approve выставляет разрешение владельца на списания до amount.
func (b *InMemoryBank) Approve(token, owner string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(token, owner)
	acc.allowance = amount
}

// TransferFrom переводит amount от from к to. Проверяет сначала allowance,
// затем баланс; при любой ошибке состояние счетов не меняется.
func (b *InMemoryBank) TransferFrom(_ context.Context, token, from, to string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.account(token, from)
	if src.allowance.LessThan(amount) {
		return ErrInsufficientAllowance
	}
	if src.balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	dst := b.account(token, to)
	src.allowance = src.allowance.Sub(amount)
	src.balance = src.balance.Sub(amount)
	dst.balance = dst.balance.Add(amount)
	return nil
}

// Allowance возвращает текущий остаток разрешения владельца.
func (b *InMemoryBank) Allowance(_ context.Context, token, owner string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account(token, owner).allowance, nil
}

// BalanceOf возвращает текущий баланс владельца.
func (b *InMemoryBank) BalanceOf(_ context.Context, token, owner string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account(token, owner).balance, nil
}
