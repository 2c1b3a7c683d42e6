package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vpn-backend/internal/db"
)

// CertificateProvisioner выпускает и отзывает клиентские сертификаты
// на нодах. Выпуск идет параллельно по всем устройствам и либо успешен
// целиком, либо не успешен вовсе; отзыв идет последовательно.
type CertificateProvisioner struct {
	certs   CertificateStore
	servers ServerStore
	api     CertAPI
}

func NewCertificateProvisioner(certs CertificateStore, servers ServerStore, api CertAPI) *CertificateProvisioner {
	return &CertificateProvisioner{
		certs:   certs,
		servers: servers,
		api:     api,
	}
}

// CertNames генерирует уникальные имена сертификатов для устройств
// пользователя.
func CertNames(tgID int64, count int) []string {
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("%d_%s", tgID, uuid.NewString()[:8])
	}
	return names
}

// Issue параллельно выпускает сертификаты на ноде. Первая же ошибка
// отменяет контекст остальных запросов, и весь вызов завершается
// ошибкой. Никакие записи в хранилище здесь не создаются — это
// удаленный шаг перед фиксацией подписки.
func (p *CertificateProvisioner) Issue(ctx context.Context, node *db.Server, names []string) ([]IssuedCert, error) {
	issued := make([]IssuedCert, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			cert, err := p.api.Issue(gctx, node.Address, name)
			if err != nil {
				return err
			}
			issued[i] = *cert
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("Certificate issuance failed",
			"server_id", node.ID,
			"address", node.Address,
			"error", err,
		)
		return nil, Upstream("certificate issuance failed", err)
	}

	return issued, nil
}

// Bind сохраняет выпущенные сертификаты за подпиской. Каждая запись
// создается вместе с инкрементом счетчика занятых слотов ноды.
func (p *CertificateProvisioner) Bind(subID uint, node *db.Server, issued []IssuedCert) ([]db.Certificate, error) {
	certs := make([]db.Certificate, 0, len(issued))
	for _, ic := range issued {
		cert := db.Certificate{
			SubscriptionID: subID,
			ServerID:       node.ID,
			Filename:       ic.Name,
			DownloadURL:    ic.DownloadURL,
			ConnURL:        ic.ConnURL,
		}
		if err := p.certs.AddCertificate(&cert); err != nil {
			return certs, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// RevokeAll последовательно отзывает все сертификаты подписки.
// Ошибка отзыва прерывает оставшиеся: на ноде остается "хвост",
// который убирается только повторным запуском (фоновой сверки нет).
func (p *CertificateProvisioner) RevokeAll(ctx context.Context, sub *db.Subscription) error {
	for i := range sub.Certificates {
		if err := p.revokeOne(ctx, &sub.Certificates[i]); err != nil {
			return err
		}
	}
	return nil
}

// RevokeSurplus отзывает последние n сертификатов подписки.
func (p *CertificateProvisioner) RevokeSurplus(ctx context.Context, sub *db.Subscription, n int) error {
	if n > len(sub.Certificates) {
		n = len(sub.Certificates)
	}
	start := len(sub.Certificates) - n
	for i := start; i < len(sub.Certificates); i++ {
		if err := p.revokeOne(ctx, &sub.Certificates[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *CertificateProvisioner) revokeOne(ctx context.Context, cert *db.Certificate) error {
	server, err := p.servers.ServerByID(cert.ServerID)
	if err != nil {
		return err
	}
	if server == nil {
		return NotFoundf("server %d for certificate %q not found", cert.ServerID, cert.Filename)
	}
	if err := p.api.Revoke(ctx, server.Address, cert.Filename); err != nil {
		slog.Error("Certificate revocation failed",
			"server_id", server.ID,
			"address", server.Address,
			"certificate", cert.Filename,
			"error", err,
		)
		return Upstream("certificate revocation failed", err)
	}
	return p.certs.RemoveCertificate(cert)
}
