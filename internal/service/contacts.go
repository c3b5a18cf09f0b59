package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/rongwang/envelope-wallet/internal/ledger"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/utils"
)

// Contacts
func (s *DefaultService) ListContacts(ctx context.Context, userID, search string) (*models.ContactListResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	found := sess.contacts.Search(search)
	views := make([]models.ContactView, len(found))
	for i, c := range found {
		views[i] = contactView(sess, c)
	}
	return &models.ContactListResponse{Status: "success", Contacts: views, Count: len(views)}, nil
}

// AddContact stores a new contact. Adding someone already known returns the
// stored contact with Added false.
func (s *DefaultService) AddContact(
	ctx context.Context,
	userID string,
	req models.AddContactRequest,
) (*models.ContactResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	c, added, err := sess.contacts.Add(models.Contact{
		ID:       req.ID,
		Name:     req.Name,
		Username: req.Username,
		Address:  req.Address,
		Avatar:   req.Avatar,
	})
	if err != nil {
		return nil, fmt.Errorf("error adding contact: %w", err)
	}
	if added {
		s.persist(ctx, sess)
		s.log.InfoContext(ctx, "contact added",
			utils.FieldOperation, "add_contact",
			utils.FieldUserID, userID,
			utils.FieldContactID, c.ID)
	}

	return &models.ContactResponse{Status: "success", Contact: contactView(sess, c), Added: added}, nil
}

func (s *DefaultService) GetContact(ctx context.Context, userID, contactID string) (*models.ContactResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	c, err := sess.contacts.Get(contactID)
	if err != nil {
		return nil, err
	}
	return &models.ContactResponse{Status: "success", Contact: contactView(sess, c)}, nil
}

func (s *DefaultService) RemoveContact(ctx context.Context, userID, contactID string) error {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return err
	}

	if err := sess.contacts.Remove(contactID); err != nil {
		return fmt.Errorf("error removing contact: %w", err)
	}
	s.persist(ctx, sess)
	return nil
}

// ContactTransactions lists the ledger records that name the contact by any
// of its handles, newest first.
func (s *DefaultService) ContactTransactions(ctx context.Context, userID, contactID string) (*models.TransactionListResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	c, err := sess.contacts.Get(contactID)
	if err != nil {
		return nil, err
	}

	recs := slices.Collect(sess.ledger.Query(ledger.Filter{Contacts: c.Handles()}))
	if recs == nil {
		recs = []models.TransactionRecord{}
	}
	return &models.TransactionListResponse{Status: "success", Transactions: recs, Count: len(recs)}, nil
}

func contactView(sess *session, c models.Contact) models.ContactView {
	v := models.ContactView{Contact: c}
	for rec := range sess.ledger.Query(ledger.Filter{Contacts: c.Handles()}) {
		d := rec.Date
		v.LastTransaction = &d
		break
	}
	return v
}

// Notifications
func (s *DefaultService) ListNotifications(ctx context.Context, userID string) (*models.NotificationListResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return notificationList(sess), nil
}

func (s *DefaultService) MarkNotificationRead(ctx context.Context, userID, notificationID string) (*models.NotificationResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	n, err := sess.inbox.MarkRead(notificationID)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, sess)
	return &models.NotificationResponse{Status: "success", Notification: n}, nil
}

func (s *DefaultService) MarkAllNotificationsRead(ctx context.Context, userID string) (*models.NotificationListResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	if sess.inbox.MarkAllRead() > 0 {
		s.persist(ctx, sess)
	}
	return notificationList(sess), nil
}

func notificationList(sess *session) *models.NotificationListResponse {
	list := sess.inbox.List()
	return &models.NotificationListResponse{
		Status:        "success",
		Notifications: list,
		Count:         len(list),
		Unread:        sess.inbox.UnreadCount(),
	}
}

// notify pushes to the inbox. The caller persists. A rejected notification is
// logged and never fails the operation that raised it.
func (s *DefaultService) notify(ctx context.Context, sess *session, n models.Notification) {
	if _, err := sess.inbox.Push(n); err != nil {
		s.log.WarnContext(ctx, "failed to push notification", utils.FieldUserID, sess.userID, utils.FieldError, err)
	}
}

// transactionNotification tells the user about money coming in or asked of
// them. Outgoing records raise nothing.
func transactionNotification(rec models.TransactionRecord) (models.Notification, bool) {
	from := rec.Contact
	if from == "" {
		from = "Someone"
	}
	amount := rec.Amount

	switch rec.Type {
	case models.TransactionReceive:
		return models.Notification{
			Type:    models.NotificationPayment,
			Title:   "Payment received",
			Message: fmt.Sprintf("%s sent you %s", from, amount.Format()),
			Amount:  &amount,
			Contact: rec.Contact,
		}, true
	case models.TransactionRequest:
		return models.Notification{
			Type:    models.NotificationRequest,
			Title:   "Payment request",
			Message: fmt.Sprintf("%s requested %s", from, amount.Format()),
			Amount:  &amount,
			Contact: rec.Contact,
		}, true
	}
	return models.Notification{}, false
}
